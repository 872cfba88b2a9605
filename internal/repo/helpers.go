package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"tracker-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func toStrPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// decodePermissionColumn parses a JSONB permission column. Rows written by older
// releases hold a JSON string that itself encodes the list; both shapes go through
// the tolerant parser so corrupt rows degrade to no permissions.
func decodePermissionColumn(ctx context.Context, raw []byte) []domain.Permission {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var legacy string
		if err := json.Unmarshal(trimmed, &legacy); err == nil {
			return domain.ParsePermissions(ctx, legacy)
		}
	}
	return domain.ParsePermissions(ctx, trimmed)
}

// encodePermissionColumn always writes the structured array form.
func encodePermissionColumn(perms []domain.Permission) ([]byte, error) {
	if perms == nil {
		perms = []domain.Permission{}
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("encode permissions: %w", err)
	}
	return b, nil
}
