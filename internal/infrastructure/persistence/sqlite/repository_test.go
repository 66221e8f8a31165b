package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"github.com/garyjia/dispatch-register/migrations"
	"github.com/garyjia/dispatch-register/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	console = entity.NewIdentity("D1", entity.IdentityDispatcher)
	alice   = entity.NewIdentity("1001", entity.IdentityISSI)
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zap.NewNop()
	conn, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "register.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, database.NewMigrator(conn, logger).RunMigrations(migrations.FS))
	return NewDB(conn.DB, logger)
}

func TestRowRepository_SaveAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewRowRepository(db, zap.NewNop())
	ctx := context.Background()
	ts := time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)

	first := &entity.Row{
		ID:        2,
		Kind:      entity.KindMMS,
		Direction: entity.DirectionOut,
		Timestamp: ts,
		Caller:    console,
		Called:    alice,
		Status:    workflow.StatePartialFailure,
		GroupKey:  7,
		Reference: 12,
		Notified:  []string{"scene.jpg to 1001 failed: Network failure"},
	}
	second := &entity.Row{
		ID:            1,
		Kind:          entity.KindSDS,
		Direction:     entity.DirectionOut,
		Timestamp:     ts,
		Caller:        console,
		Called:        alice,
		Body:          "Return to base",
		Status:        workflow.StateSending,
		PendingAckID:  "ack-1",
		MonitoredCopy: true,
	}
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	first.Status = workflow.StateFailed
	first.StatusDetail = "Network failure"
	require.NoError(t, repo.Save(ctx, first))

	rows, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, "ack-1", rows[0].PendingAckID)
	assert.True(t, rows[0].MonitoredCopy)
	assert.Nil(t, rows[0].Notified)

	got := rows[1]
	assert.Equal(t, workflow.StateFailed, got.Status)
	assert.Equal(t, "Network failure", got.StatusDetail)
	assert.Equal(t, alice, got.Called)
	assert.Equal(t, console, got.Caller)
	assert.Equal(t, first.Notified, got.Notified)
	assert.True(t, ts.Equal(got.Timestamp))

	require.NoError(t, repo.Delete(ctx, 2))
	require.NoError(t, repo.Delete(ctx, 2))
	rows, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAttachmentRepository_SaveAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewAttachmentRepository(db, zap.NewNop())
	ctx := context.Background()

	downloading := &entity.AttachmentRecord{
		Key:      entity.AttachmentKey{GroupKey: 3, Party: console, FileID: "m-2"},
		Seq:      2,
		State:    workflow.StateDownloadFailed,
		FileName: "map.png",
		Path:     "https://mms.example/m-2",
		Info:     []string{"Connection reset"},
		Request: &entity.TransferRequest{
			Reference: 4,
			Caller:    alice,
			FileID:    "m-2",
			URL:       "https://mms.example/m-2",
		},
	}
	downloading.ErrorEntry = 1
	sent := &entity.AttachmentRecord{
		Key:   entity.AttachmentKey{GroupKey: 3, Party: alice, FileID: "f1"},
		Seq:   1,
		State: workflow.StateRecipientDownloaded,
		Size:  2048,
	}
	require.NoError(t, repo.Save(ctx, downloading))
	require.NoError(t, repo.Save(ctx, sent))

	downloading.State = workflow.StateDownloaded
	downloading.Path = "/cache/3/map.png"
	downloading.Request = nil
	downloading.ClearError()
	require.NoError(t, repo.Save(ctx, downloading))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, sent.Key, records[0].Key)
	assert.Equal(t, int64(2048), records[0].Size)

	got := records[1]
	assert.Equal(t, downloading.Key, got.Key)
	assert.Equal(t, workflow.StateDownloaded, got.State)
	assert.Equal(t, "/cache/3/map.png", got.Path)
	assert.Nil(t, got.Request)
	assert.Nil(t, got.Info)
	assert.Zero(t, got.ErrorEntry)

	require.NoError(t, repo.Delete(ctx, downloading.Key))
	records, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAttachmentRepository_RequestRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewAttachmentRepository(db, zap.NewNop())
	ctx := context.Background()
	rec := &entity.AttachmentRecord{
		Key:     entity.AttachmentKey{GroupKey: 9, Party: console, FileID: "x"},
		Seq:     1,
		State:   workflow.StateDownloading,
		Request: &entity.TransferRequest{Reference: 2, Caller: alice, FileID: "x", FileName: "x.jpg", Size: 10},
	}
	require.NoError(t, repo.Save(ctx, rec))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.Request, records[0].Request)
}

func TestDB_WithTransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewRowRepository(db, zap.NewNop())
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Save(txCtx, &entity.Row{ID: 1, Status: workflow.StateSending, Timestamp: time.Now()}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, db.WithTransaction(ctx, func(txCtx context.Context) error {
		return repo.Save(txCtx, &entity.Row{ID: 1, Status: workflow.StateSending, Timestamp: time.Now()})
	}))
	rows, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDB_NestedTransactionJoinsOuter(t *testing.T) {
	db := newTestDB(t)
	rows := NewRowRepository(db, zap.NewNop())
	records := NewAttachmentRepository(db, zap.NewNop())
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(outer context.Context) error {
		require.NoError(t, rows.Save(outer, &entity.Row{ID: 1, Status: workflow.StateSending, Timestamp: time.Now()}))
		require.NoError(t, db.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, txFrom(outer), txFrom(inner))
			return records.Save(inner, &entity.AttachmentRecord{
				Key:   entity.AttachmentKey{GroupKey: 3, Party: alice, FileID: "m-1"},
				State: workflow.StateUploaded,
			})
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	gotRows, err := rows.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, gotRows)
	gotRecords, err := records.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, gotRecords, "inner work is rolled back with the outer transaction")
}
