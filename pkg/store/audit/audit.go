// Package audit implements the append-only audit_logs table: the
// structured store's audited mutations write an AuditEvent after they
// commit, and a retention sweep reclaims entries past the
// 7-year compliance ceiling. Audit write failures are logged but never
// propagated to the caller — a deliberate exception to the general
// surface-everything error policy.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
)

// Writer appends AuditEvents to the audit_logs table and sweeps expired ones.
type Writer struct {
	db  *sqlx.DB
	log logr.Logger
}

// New builds a Writer over an already-connected database handle.
func New(db *sqlx.DB, log logr.Logger) *Writer {
	return &Writer{db: db, log: log}
}

// Record emits one AuditEvent. Failures here are logged and swallowed —
// the caller's primary mutation has already committed and must not be
// undone because the audit trail couldn't be written.
func (w *Writer) Record(ctx context.Context, op model.AuditOperation, table, itemID string, userID *string, metadata map[string]any) {
	event := model.AuditEvent{
		AuditID:   uuid.NewString(),
		Operation: op,
		Table:     table,
		ItemID:    itemID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := w.write(ctx, event); err != nil {
		w.log.Error(err, "audit write failed, continuing", "operation", op, "table", table, "item_id", itemID)
	}
}

func (w *Writer) write(ctx context.Context, event model.AuditEvent) error {
	metaJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}
	_, err = w.db.ExecContext(ctx, `
		INSERT INTO audit_logs (audit_id, operation, table_name, item_id, user_id, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.AuditID, event.Operation, event.Table, event.ItemID, event.UserID, event.Timestamp, metaJSON)
	return err
}

// Query returns audit events for one item, newest-first — used in tests to
// verify the AuditEvent's timestamp never precedes the mutation's
// updated_at, and to reconstruct an item's mutation history for operators.
func (w *Writer) Query(ctx context.Context, table, itemID string) ([]model.AuditEvent, error) {
	rows, err := w.db.QueryxContext(ctx, `
		SELECT audit_id, operation, table_name, item_id, user_id, timestamp, metadata
		FROM audit_logs WHERE table_name = $1 AND item_id = $2 ORDER BY timestamp DESC
	`, table, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var (
			row      auditRow
		)
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		out = append(out, row.toEvent())
	}
	return out, rows.Err()
}

// Sweep deletes audit_logs rows older than the retention ceiling
// (AuditRetentionDays, 7 years), returning the count removed.
func (w *Writer) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -model.AuditRetentionDays)
	res, err := w.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type auditRow struct {
	AuditID   string    `db:"audit_id"`
	Operation string    `db:"operation"`
	Table     string    `db:"table_name"`
	ItemID    string    `db:"item_id"`
	UserID    *string   `db:"user_id"`
	Timestamp time.Time `db:"timestamp"`
	Metadata  []byte    `db:"metadata"`
}

func (r auditRow) toEvent() model.AuditEvent {
	var meta map[string]any
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &meta)
	}
	return model.AuditEvent{
		AuditID:   r.AuditID,
		Operation: model.AuditOperation(r.Operation),
		Table:     r.Table,
		ItemID:    r.ItemID,
		UserID:    r.UserID,
		Timestamp: r.Timestamp,
		Metadata:  meta,
	}
}
