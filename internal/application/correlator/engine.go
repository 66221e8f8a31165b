// Package correlator attributes protocol reports to register rows and
// attachment records. All methods must be called from the event loop.
package correlator

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/dispatch-register/internal/application/dispatcher"
	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/application/store"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

// DefaultDeferredDelay is the wait before a completed plain-message send is
// reported as delivered
const DefaultDeferredDelay = 300 * time.Millisecond

// Config holds engine settings
type Config struct {
	// DeferredDelay is the delay of the re-check after message.send_complete
	DeferredDelay time.Duration

	// LocalIdentity is the called party of inbound rows addressed to this console
	LocalIdentity entity.Identity
}

// Engine is the delivery-status correlation engine
type Engine struct {
	rows        *store.RowStore
	attachments *store.AttachmentStore
	transitions *workflow.Table
	scheduler   port.Scheduler
	observer    port.Observer
	tx          port.TransactionManager
	config      Config
	logger      *zap.Logger

	pending map[int64]port.CancelFunc
	changes changeSet
}

// Option configures an Engine
type Option func(*Engine)

// WithTransactions makes every correlation step persist in one transaction
func WithTransactions(tm port.TransactionManager) Option {
	return func(e *Engine) {
		e.tx = tm
	}
}

// NewEngine creates an engine over the given stores. observer may be nil.
func NewEngine(
	rows *store.RowStore,
	attachments *store.AttachmentStore,
	scheduler port.Scheduler,
	observer port.Observer,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if config.DeferredDelay <= 0 {
		config.DeferredDelay = DefaultDeferredDelay
	}
	if config.LocalIdentity.IsZero() {
		config.LocalIdentity = entity.NewIdentity("local", entity.IdentityDispatcher)
	}
	if observer == nil {
		observer = nopObserver{}
	}

	e := &Engine{
		rows:        rows,
		attachments: attachments,
		transitions: workflow.NewTransferTable(),
		scheduler:   scheduler,
		observer:    observer,
		config:      config,
		logger:      logger,
		pending:     make(map[int64]port.CancelFunc),
		changes:     newChangeSet(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register subscribes the engine's report handlers on the dispatcher
func (e *Engine) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeFileIncoming, "inbound.file_incoming", e.handler(e.handleFileIncoming))
	d.SubscribeNamed(event.TypeFileTransferFinished, "inbound.transfer_finished", e.handler(e.handleTransferFinished))
	d.SubscribeNamed(event.TypeMessageIncoming, "inbound.message", e.handler(e.handleMessageIncoming))
	d.SubscribeNamed(event.TypeUploadLocalFailed, "outbound.upload_local_failed", e.handler(e.handleWholeSend))
	d.SubscribeNamed(event.TypeUploadProgress, "outbound.upload_progress", e.handler(e.handleWholeSend))
	d.SubscribeNamed(event.TypeSendResult, "outbound.send_result", e.handler(e.handleWholeSend))
	d.SubscribeNamed(event.TypeRecipientResult, "outbound.recipient_result", e.handler(e.handleRecipientResult))
	d.SubscribeNamed(event.TypeMessageAck, "ack.message", e.handler(e.handleAck))
	d.SubscribeNamed(event.TypeMessageSendComplete, "ack.send_complete", e.handler(e.handleSendComplete))
	d.SubscribeNamed(event.TypeMessageMonitoredCopy, "ack.monitored_copy", e.handler(e.handleMonitoredCopy))
}

// Load reads persisted rows and records and reserves their group keys
func (e *Engine) Load(ctx context.Context) error {
	if err := e.rows.Load(ctx); err != nil {
		return err
	}
	if err := e.attachments.Load(ctx); err != nil {
		return err
	}
	for _, key := range e.attachments.GroupKeys() {
		e.rows.ReserveGroupKey(key)
	}
	return nil
}

// Rows returns the row store
func (e *Engine) Rows() *store.RowStore {
	return e.rows
}

// Attachments returns the attachment store
func (e *Engine) Attachments() *store.AttachmentStore {
	return e.attachments
}

// handler extracts the report once and notifies the observer when the
// correlator is done with it. Correlators never fail the dispatch.
func (e *Engine) handler(fn func(ctx context.Context, r event.Report)) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		r := event.ExtractReport(evt)
		e.logger.Debug("Correlating report",
			zap.String("type", r.Type.String()),
			zap.String("event_id", r.EventID),
			zap.Int("reference", r.Reference),
			zap.String("file_id", r.FileID()))

		_ = e.Atomically(ctx, func(ctx context.Context) error {
			fn(ctx, r)
			return nil
		})
		e.Flush()
		return nil
	}
}

// Atomically runs fn, which mutates the stores, so that its writes reach the
// database together. Cancellation of ctx is not propagated: once memory has
// changed the writes must follow, so the transaction is committed even when
// fn returns an error.
func (e *Engine) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	if e.tx == nil {
		return fn(ctx)
	}

	var workErr error
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		workErr = fn(txCtx)
		return nil
	})
	if err != nil {
		e.logger.Error("Register changes not persisted", zap.Error(err))
	}
	return errors.Join(workErr, err)
}

// Flush delivers the collected change notifications to the observer
func (e *Engine) Flush() {
	e.changes.flush(e.observer)
}

// fire applies a trigger to a record through the transfer table. It returns
// the previous state and false if the transition is not permitted.
func (e *Engine) fire(rec *entity.AttachmentRecord, trigger workflow.Trigger) (workflow.State, bool) {
	prev := rec.State
	next, err := e.transitions.Next(prev, trigger)
	if err != nil {
		e.logger.Debug("Stale or out of order report ignored",
			zap.Int64("group_key", rec.Key.GroupKey),
			zap.String("file_id", rec.Key.FileID),
			zap.String("state", prev.String()),
			zap.String("trigger", trigger.String()))
		return prev, false
	}
	rec.State = next
	return prev, true
}

// recordError logs a failure text. A record that already carries an error
// has that entry replaced so repeated retries do not grow the log.
func recordError(rec *entity.AttachmentRecord, text string) {
	if rec.ErrorEntry > 0 {
		rec.ReplaceError(text)
		return
	}
	rec.AppendError(text)
}

func (e *Engine) saveRecord(ctx context.Context, rec *entity.AttachmentRecord) {
	e.attachments.Put(ctx, rec)
	e.changes.attachment(rec.Key)
}

func (e *Engine) saveRow(ctx context.Context, row *entity.Row) {
	e.rows.Update(ctx, row)
	e.changes.row(row.ID)
}

func (e *Engine) insertRow(ctx context.Context, row *entity.Row) *entity.Row {
	row = e.rows.Insert(ctx, row)
	e.changes.row(row.ID)
	return row
}

func (e *Engine) notify(message string) {
	e.changes.notify(message)
}

type nopObserver struct{}

func (nopObserver) OnRowChanged(int64)                      {}
func (nopObserver) OnRowRemoved(int64)                      {}
func (nopObserver) OnAttachmentChanged(entity.AttachmentKey) {}
func (nopObserver) OnNotify(string)                         {}
