package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tracker-api/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePermissionColumn(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
		want []domain.Permission
	}{
		{"Array", `["tickets.create","board.view"]`, []domain.Permission{domain.PermTicketsCreate, domain.PermBoardView}},
		{"LegacyEncodedString", `"[\"tickets.create\",\"bogus.perm\"]"`, []domain.Permission{domain.PermTicketsCreate}},
		{"LegacyGarbageString", `"not json"`, []domain.Permission{}},
		{"Object", `{"a":1}`, []domain.Permission{}},
		{"Number", `123`, []domain.Permission{}},
		{"Empty", ``, []domain.Permission{}},
		{"Null", `null`, []domain.Permission{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodePermissionColumn(ctx, []byte(tt.raw))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodePermissionColumn(t *testing.T) {
	b, err := encodePermissionColumn(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	b, err = encodePermissionColumn([]domain.Permission{domain.PermBoardEdit})
	require.NoError(t, err)
	assert.JSONEq(t, `["board.edit"]`, string(b))
}

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "roles_pkey"})
	fk := &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "roles_project_id_fkey"}

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isUniqueViolation(errors.New("boom")))

	ok, constraint := isForeignKeyViolation(fk)
	assert.True(t, ok)
	assert.Equal(t, "roles_project_id_fkey", constraint)

	ok, _ = isForeignKeyViolation(unique)
	assert.False(t, ok)
}

func TestNewID(t *testing.T) {
	a, b := newID(), newID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
