package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

// RowRepository implements port.RowRepository
type RowRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRowRepository creates a new row repository
func NewRowRepository(db *DB, logger *zap.Logger) *RowRepository {
	return &RowRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or replaces a row
func (r *RowRepository) Save(ctx context.Context, row *entity.Row) error {
	query := `
		INSERT INTO register_rows (
			id, kind, direction, timestamp, caller_id, caller_type, called_id, called_type,
			body, status, status_detail, group_key, reference, pending_ack_id, notified, monitored_copy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			direction = excluded.direction,
			timestamp = excluded.timestamp,
			caller_id = excluded.caller_id,
			caller_type = excluded.caller_type,
			called_id = excluded.called_id,
			called_type = excluded.called_type,
			body = excluded.body,
			status = excluded.status,
			status_detail = excluded.status_detail,
			group_key = excluded.group_key,
			reference = excluded.reference,
			pending_ack_id = excluded.pending_ack_id,
			notified = excluded.notified,
			monitored_copy = excluded.monitored_copy
	`

	notified, err := marshalStrings(row.Notified)
	if err != nil {
		return fmt.Errorf("failed to encode notified texts: %w", err)
	}

	_, err = r.db.getExecutor(ctx).ExecContext(ctx, query,
		row.ID,
		row.Kind,
		row.Direction,
		row.Timestamp,
		row.Caller.ID,
		row.Caller.Type,
		row.Called.ID,
		row.Called.Type,
		row.Body,
		row.Status,
		row.StatusDetail,
		row.GroupKey,
		row.Reference,
		row.PendingAckID,
		notified,
		row.MonitoredCopy,
	)
	if err != nil {
		r.logger.Error("Failed to save row", zap.Int64("row_id", row.ID), zap.Error(err))
		return fmt.Errorf("failed to save row: %w", err)
	}
	return nil
}

// Delete removes a row
func (r *RowRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.getExecutor(ctx).ExecContext(ctx, "DELETE FROM register_rows WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to delete row", zap.Int64("row_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete row: %w", err)
	}
	return nil
}

// List returns all rows ordered by ID
func (r *RowRepository) List(ctx context.Context) ([]*entity.Row, error) {
	query := `
		SELECT id, kind, direction, timestamp, caller_id, caller_type, called_id, called_type,
			body, status, status_detail, group_key, reference, pending_ack_id, notified, monitored_copy
		FROM register_rows
		ORDER BY id
	`

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	var result []*entity.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanRow(rows *sql.Rows) (*entity.Row, error) {
	var (
		row                    entity.Row
		callerType, calledType string
		status                 string
		notified               string
	)
	err := rows.Scan(
		&row.ID,
		&row.Kind,
		&row.Direction,
		&row.Timestamp,
		&row.Caller.ID,
		&callerType,
		&row.Called.ID,
		&calledType,
		&row.Body,
		&status,
		&row.StatusDetail,
		&row.GroupKey,
		&row.Reference,
		&row.PendingAckID,
		&notified,
		&row.MonitoredCopy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row.Caller.Type = entity.IdentityType(callerType)
	row.Called.Type = entity.IdentityType(calledType)
	row.Status = workflow.State(status)
	if row.Notified, err = unmarshalStrings(notified); err != nil {
		return nil, fmt.Errorf("failed to decode notified texts of row %d: %w", row.ID, err)
	}
	return &row, nil
}

func marshalStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var values []string
	if data == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

var _ port.RowRepository = (*RowRepository)(nil)
