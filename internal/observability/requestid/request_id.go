package requestid

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// maxInboundLength bounds request IDs accepted from clients.
const maxInboundLength = 128

var inboundPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// NewRequestID generates a time-ordered request ID: "req_" followed by a UUIDv7 without dashes.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "req_" + strings.ReplaceAll(id.String(), "-", "")
}

// FromHeader returns the inbound request ID if it is safe to propagate,
// otherwise a freshly generated one.
func FromHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxInboundLength || !inboundPattern.MatchString(value) {
		return NewRequestID()
	}
	return value
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// SetRequestID stores request ID in context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}
