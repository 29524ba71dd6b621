package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"pollhub.org/internal/audit"
)

// AuditSink persists audit events in the audit_log table.
type AuditSink struct {
	store *Store
}

var _ audit.Sink = (*AuditSink)(nil)

func NewAuditSink(store *Store) *AuditSink { return &AuditSink{store: store} }

func (a *AuditSink) Record(ctx context.Context, e audit.Event) error {
	if a.store == nil || a.store.db == nil {
		return errNoDB
	}
	e, err := audit.Normalize(ctx, e)
	if err != nil {
		return err
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err = a.store.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, event_type, actor_id, resource_kind, resource_id, outcome, reason, request_id, metadata)
		values ($1, $2, $3, nullif($4, ''), nullif($5, ''), nullif($6, ''), nullif($7, ''), nullif($8, ''), nullif($9, ''), $10)`,
		e.ID, e.OccurredAt, e.Type, e.ActorID, e.ResourceKind, e.ResourceID, e.Outcome, e.Reason, e.RequestID, meta)
	return err
}
