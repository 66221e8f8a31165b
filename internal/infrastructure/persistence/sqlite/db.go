package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/dispatch-register/internal/application/port"
	"go.uber.org/zap"
)

type txContextKey struct{}

// DB is the register database. Repositories built on it join the
// transaction carried by the context, if any.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB wraps an opened connection pool
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction runs fn with a transaction in its context. Nested calls
// join the outer transaction; only the outermost call commits.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to open register transaction", zap.Error(err))
		return fmt.Errorf("begin register transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			db.rollback(tx, "panic")
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		db.rollback(tx, err.Error())
		return err
	}

	if err = tx.Commit(); err != nil {
		db.logger.Error("Failed to commit register transaction", zap.Error(err))
		return fmt.Errorf("commit register transaction: %w", err)
	}
	return nil
}

func (db *DB) rollback(tx *sql.Tx, cause string) {
	if err := tx.Rollback(); err != nil {
		db.logger.Error("Failed to roll back register transaction",
			zap.String("cause", cause),
			zap.Error(err))
		return
	}
	db.logger.Warn("Register transaction rolled back", zap.String("cause", cause))
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx
}

// querier is the part of *sql.DB and *sql.Tx the repositories use
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (db *DB) getExecutor(ctx context.Context) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.DB
}

var _ port.TransactionManager = (*DB)(nil)
