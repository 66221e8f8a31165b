package correlator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/garyjia/dispatch-register/internal/application/dispatcher"
	"github.com/garyjia/dispatch-register/internal/application/store"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"github.com/garyjia/dispatch-register/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/dispatch-register/migrations"
	"github.com/garyjia/dispatch-register/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type registerDB struct {
	tx          *sqlite.DB
	rows        *sqlite.RowRepository
	attachments *sqlite.AttachmentRepository
}

func openRegisterDB(t *testing.T) *registerDB {
	t.Helper()
	logger := zap.NewNop()
	conn, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "register.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, database.NewMigrator(conn, logger).RunMigrations(migrations.FS))

	db := sqlite.NewDB(conn.DB, logger)
	return &registerDB{
		tx:          db,
		rows:        sqlite.NewRowRepository(db, logger),
		attachments: sqlite.NewAttachmentRepository(db, logger),
	}
}

func (r *registerDB) engine(sched *fakeScheduler) (*Engine, dispatcher.Dispatcher) {
	e := NewEngine(
		store.NewRowStore(r.rows, zap.NewNop()),
		store.NewAttachmentStore(r.attachments, zap.NewNop()),
		sched,
		nil,
		Config{LocalIdentity: console},
		zap.NewNop(),
		WithTransactions(r.tx),
	)
	d := dispatcher.NewDispatcher()
	e.Register(d)
	return e, d
}

// reload reads the register back as a restarted process would
func (r *registerDB) reload(t *testing.T) *Engine {
	t.Helper()
	e, _ := r.engine(&fakeScheduler{})
	require.NoError(t, e.Load(context.Background()))
	return e
}

func TestEngine_CancelledCallerStillPersists(t *testing.T) {
	db := openRegisterDB(t)
	e, d := db.engine(&fakeScheduler{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, err := e.BeginSend(ctx, twoFileSend(5, alice))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeRecipientResult, recipientResult(5, alice, "f1", true, 0, ""))))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeRecipientResult, recipientResult(5, alice, "f2", false, 3, "Network failure"))))

	live, ok := e.Rows().Snapshot(rows[0].ID)
	require.True(t, ok)
	assert.Equal(t, workflow.StatePartialFailure, live.Status)

	restarted := db.reload(t)
	row, ok := restarted.Rows().Snapshot(rows[0].ID)
	require.True(t, ok)
	assert.Equal(t, live.Status, row.Status)
	assert.ElementsMatch(t, live.Notified, row.Notified)

	group := rows[0].GroupKey
	for _, fileID := range []string{"f1", "f2"} {
		key := entity.AttachmentKey{GroupKey: group, Party: alice, FileID: fileID}
		want, ok := e.Attachments().Get(key)
		require.True(t, ok)
		got, ok := restarted.Attachments().Get(key)
		require.True(t, ok, "record %s not persisted", fileID)
		assert.Equal(t, want.State, got.State)
		assert.ElementsMatch(t, want.Info, got.Info)
	}
}

func TestEngine_RecheckPersists(t *testing.T) {
	db := openRegisterDB(t)
	sched := &fakeScheduler{}
	e, d := db.engine(sched)

	rows, err := e.BeginSend(context.Background(), textSend(1, "a-1", alice))
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeMessageSendComplete, map[string]interface{}{
		event.FieldAckID:   "a-1",
		event.FieldSuccess: true,
	})))
	sched.fireAll()

	row, ok := db.reload(t).Rows().Snapshot(rows[0].ID)
	require.True(t, ok)
	assert.Equal(t, workflow.StateSent, row.Status)
	assert.Equal(t, "a-1", row.PendingAckID, "a late acknowledgement can still correct the row")
}

// countingTx runs the work directly and records what it was handed
type countingTx struct {
	calls     int
	cancelled bool
}

func (c *countingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	if ctx.Err() != nil {
		c.cancelled = true
	}
	return fn(ctx)
}

func TestEngine_OneTransactionPerStep(t *testing.T) {
	tx := &countingTx{}
	e := NewEngine(
		store.NewRowStore(nil, zap.NewNop()),
		store.NewAttachmentStore(nil, zap.NewNop()),
		&fakeScheduler{},
		nil,
		Config{LocalIdentity: console},
		zap.NewNop(),
		WithTransactions(tx),
	)
	d := dispatcher.NewDispatcher()
	e.Register(d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.BeginSend(ctx, twoFileSend(5, alice, bob))
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)

	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeRecipientResult, recipientResult(5, alice, "f1", true, 0, ""))))
	assert.Equal(t, 2, tx.calls)

	_, err = e.BeginSend(ctx, SendRequest{Caller: console})
	assert.ErrorIs(t, err, ErrInvalidSend)
	assert.Equal(t, 2, tx.calls, "rejected sends open no transaction")
	assert.False(t, tx.cancelled)
}
