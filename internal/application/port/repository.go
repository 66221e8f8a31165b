package port

import (
	"context"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
)

// RowRepository persists register rows so they survive restarts
type RowRepository interface {
	// Save inserts or replaces the row with the row's ID
	Save(ctx context.Context, row *entity.Row) error

	// Delete removes a row; deleting a missing row is not an error
	Delete(ctx context.Context, id int64) error

	// List returns all rows ordered by ID
	List(ctx context.Context) ([]*entity.Row, error)
}

// AttachmentRepository persists attachment records keyed by entity.AttachmentKey
type AttachmentRepository interface {
	// Save inserts or replaces the record with the record's key
	Save(ctx context.Context, rec *entity.AttachmentRecord) error

	// Delete removes a record; deleting a missing record is not an error
	Delete(ctx context.Context, key entity.AttachmentKey) error

	// List returns all records ordered by sequence
	List(ctx context.Context) ([]*entity.AttachmentRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
