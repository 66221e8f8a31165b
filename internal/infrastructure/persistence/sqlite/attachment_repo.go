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

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *DB, logger *zap.Logger) *AttachmentRepository {
	return &AttachmentRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or replaces an attachment record
func (r *AttachmentRepository) Save(ctx context.Context, rec *entity.AttachmentRecord) error {
	query := `
		INSERT INTO attachment_records (
			group_key, party_id, party_type, file_id, seq, state, file_name, path,
			size, info, error_entry, request
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_key, party_id, party_type, file_id) DO UPDATE SET
			seq = excluded.seq,
			state = excluded.state,
			file_name = excluded.file_name,
			path = excluded.path,
			size = excluded.size,
			info = excluded.info,
			error_entry = excluded.error_entry,
			request = excluded.request
	`

	info, err := marshalStrings(rec.Info)
	if err != nil {
		return fmt.Errorf("failed to encode info log: %w", err)
	}

	var request sql.NullString
	if rec.Request != nil {
		data, err := json.Marshal(rec.Request)
		if err != nil {
			return fmt.Errorf("failed to encode transfer request: %w", err)
		}
		request = sql.NullString{String: string(data), Valid: true}
	}

	_, err = r.db.getExecutor(ctx).ExecContext(ctx, query,
		rec.Key.GroupKey,
		rec.Key.Party.ID,
		rec.Key.Party.Type,
		rec.Key.FileID,
		rec.Seq,
		rec.State,
		rec.FileName,
		rec.Path,
		rec.Size,
		info,
		rec.ErrorEntry,
		request,
	)
	if err != nil {
		r.logger.Error("Failed to save attachment record",
			zap.Int64("group_key", rec.Key.GroupKey),
			zap.String("file_id", rec.Key.FileID),
			zap.Error(err))
		return fmt.Errorf("failed to save attachment record: %w", err)
	}
	return nil
}

// Delete removes an attachment record
func (r *AttachmentRepository) Delete(ctx context.Context, key entity.AttachmentKey) error {
	query := `
		DELETE FROM attachment_records
		WHERE group_key = ? AND party_id = ? AND party_type = ? AND file_id = ?
	`
	_, err := r.db.getExecutor(ctx).ExecContext(ctx, query, key.GroupKey, key.Party.ID, key.Party.Type, key.FileID)
	if err != nil {
		r.logger.Error("Failed to delete attachment record",
			zap.Int64("group_key", key.GroupKey),
			zap.String("file_id", key.FileID),
			zap.Error(err))
		return fmt.Errorf("failed to delete attachment record: %w", err)
	}
	return nil
}

// List returns all records ordered by sequence
func (r *AttachmentRepository) List(ctx context.Context) ([]*entity.AttachmentRecord, error) {
	query := `
		SELECT group_key, party_id, party_type, file_id, seq, state, file_name, path,
			size, info, error_entry, request
		FROM attachment_records
		ORDER BY seq
	`

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachment records: %w", err)
	}
	defer rows.Close()

	var result []*entity.AttachmentRecord
	for rows.Next() {
		var (
			rec       entity.AttachmentRecord
			partyType string
			state     string
			info      string
			request   sql.NullString
		)
		err := rows.Scan(
			&rec.Key.GroupKey,
			&rec.Key.Party.ID,
			&partyType,
			&rec.Key.FileID,
			&rec.Seq,
			&state,
			&rec.FileName,
			&rec.Path,
			&rec.Size,
			&info,
			&rec.ErrorEntry,
			&request,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment record: %w", err)
		}

		rec.Key.Party.Type = entity.IdentityType(partyType)
		rec.State = workflow.State(state)
		if rec.Info, err = unmarshalStrings(info); err != nil {
			return nil, fmt.Errorf("failed to decode info log: %w", err)
		}
		if request.Valid {
			rec.Request = &entity.TransferRequest{}
			if err := json.Unmarshal([]byte(request.String), rec.Request); err != nil {
				return nil, fmt.Errorf("failed to decode transfer request: %w", err)
			}
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}

var _ port.AttachmentRepository = (*AttachmentRepository)(nil)
