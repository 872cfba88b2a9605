package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ProjectID    string
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	RequestID    string
}

// AuditRepo handles audit log storage
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo creates a new AuditRepo
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// LogAction appends an entry to the audit log.
func (r *AuditRepo) LogAction(ctx context.Context, entry AuditEntry) error {
	metadataJSON := []byte(`{}`)
	if len(entry.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (project_id, actor_id, action, resource_type, resource_id, metadata, request_id)
		VALUES (NULLIF($1, ''), $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''))
	`, entry.ProjectID, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID, metadataJSON, entry.RequestID)
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	return nil
}
