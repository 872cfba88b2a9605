package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tracker-api/internal/observability/requestid"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	loggerContextKey    contextKey = "logger"
	projectIDContextKey contextKey = "project_id"
	userIDContextKey    contextKey = "user_id"
	rootErrorContextKey contextKey = "root_err"
)

const redacted = "[REDACTED]"

// redactedKeys are field keys whose values never reach the output: credentials,
// key material and personal data. Matching is case-insensitive.
var redactedKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"password":      {},
	"secret":        {},
	"hs256_secret":  {},
	"api_key":       {},
	"x-api-key":     {},
	"raw_key":       {},
	"key_hash":      {},
	"database_url":  {},
	"redis_url":     {},
	"jwt":           {},
	"bearer":        {},
	"credential":    {},
	"email":         {},
	"phone":         {},
	"full_name":     {},
	"first_name":    {},
	"last_name":     {},
	"address":       {},
}

type rootErrorContainer struct {
	err error
}

// Logger wraps zap.Logger. Every entry carries service, module and action plus
// the request, project and user ids found in the context.
type Logger struct {
	zap         *zap.Logger
	serviceName string
}

// Field represents a structured log field
type Field = zapcore.Field

// New creates a JSON logger writing to stdout.
// level: "debug", "info", "warn", "error"; anything else means info.
func New(serviceName string, level string) (*Logger, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("serviceName is required")
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	z, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &Logger{zap: z.With(zap.String("service", serviceName)), serviceName: serviceName}, nil
}

// NewWithCore builds a Logger on top of an existing zap core.
func NewWithCore(serviceName string, core zapcore.Core) *Logger {
	return &Logger{
		zap:         zap.New(core).With(zap.String("service", serviceName)),
		serviceName: serviceName,
	}
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), serviceName: "nop"}
}

// WithContext returns a logger with the context ids bound as fields.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return &Logger{zap: l.zap.With(fields...), serviceName: l.serviceName}
}

// Module returns a field for the module/component
func Module(name string) Field {
	return zap.String("module", name)
}

// Action returns a field for the action/operation
func Action(name string) Field {
	return zap.String("action", name)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// log writes one entry. Missing module or action become "unknown" rather than
// dropping the entry.
func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	ce := l.zap.Check(level, msg)
	if ce == nil {
		return
	}

	out := contextFields(ctx)
	hasModule, hasAction := false, false
	for _, f := range fields {
		switch f.Key {
		case "module":
			hasModule = true
		case "action":
			hasAction = true
		}
		out = append(out, redact(f))
	}
	if !hasModule {
		out = append(out, zap.String("module", "unknown"))
	}
	if !hasAction {
		out = append(out, zap.String("action", "unknown"))
	}
	ce.Write(out...)
}

func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	var fields []Field
	if id := requestid.GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetProjectIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("project_id", id))
	}
	if id := GetUserIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("user_id", id))
	}
	return fields
}

func redact(f Field) Field {
	if _, ok := redactedKeys[strings.ToLower(f.Key)]; ok {
		return zap.String(f.Key, redacted)
	}
	return f
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func GetRequestIDFromContext(ctx context.Context) string {
	return requestid.GetRequestID(ctx)
}

func GetProjectIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(projectIDContextKey).(string)
	return id
}

func GetUserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey).(string)
	return id
}

func SetRequestIDInContext(ctx context.Context, requestID string) context.Context {
	return requestid.SetRequestID(ctx, requestID)
}

func SetProjectIDInContext(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDContextKey, projectID)
}

func SetUserIDInContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

var (
	fallbackOnce sync.Once
	fallback     *Logger
)

// GetLogger returns the request logger, or a process-wide info logger when the
// context carries none.
func GetLogger(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey).(*Logger); ok && l != nil {
		return l
	}
	fallbackOnce.Do(func() {
		fallback, _ = New("tracker-api", "info")
		if fallback == nil {
			fallback = NewNop()
		}
	})
	return fallback
}

// SetLoggerInContext stores logger in context
func SetLoggerInContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// InitRootErrorContext installs a slot that handlers fill with the underlying
// error of a 5xx so the request log line can report it.
func InitRootErrorContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, rootErrorContextKey, &rootErrorContainer{})
}

// SetRootError records err in the slot; it is a no-op without one.
func SetRootError(ctx context.Context, err error) {
	if container, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		container.err = err
	}
}

// GetRootError returns the recorded error, if any.
func GetRootError(ctx context.Context) error {
	if container, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		return container.err
	}
	return nil
}
