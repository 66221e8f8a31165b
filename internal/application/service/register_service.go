package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/dispatch-register/internal/application/cleanup"
	"github.com/garyjia/dispatch-register/internal/application/correlator"
	"github.com/garyjia/dispatch-register/internal/application/dispatcher"
	"github.com/garyjia/dispatch-register/internal/application/store"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
)

var (
	// ErrUnknownReport is returned for a report type the engine does not route
	ErrUnknownReport = errors.New("unknown report type")

	// ErrGroupNotFound is returned when no record carries the group key
	ErrGroupNotFound = errors.New("attachment group not found")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Runner executes a function on the event loop and waits for it
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// RegisterService is the entry point for everything outside the event loop:
// transports hand in reports, the operator API reads and edits the register
type RegisterService interface {
	SubmitReport(ctx context.Context, evt *event.Event) error
	BeginSend(ctx context.Context, req correlator.SendRequest) ([]*entity.Row, error)
	ListRows(ctx context.Context) ([]*entity.Row, error)
	GetRow(ctx context.Context, id int64) (*entity.Row, error)
	ListAttachments(ctx context.Context, groupKey int64) ([]*entity.AttachmentRecord, workflow.State, error)
	DeleteRows(ctx context.Context, ids ...int64) error
	MarkSaved(ctx context.Context, key entity.AttachmentKey, location string) error
	Cleanup(ctx context.Context) error
}

type registerServiceImpl struct {
	runner     Runner
	engine     *correlator.Engine
	cleanup    *cleanup.Manager
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// NewRegisterService creates a RegisterService. The engine's handlers must
// already be registered on the dispatcher.
func NewRegisterService(
	runner Runner,
	engine *correlator.Engine,
	cleanupManager *cleanup.Manager,
	d dispatcher.Dispatcher,
	logger Logger,
) RegisterService {
	return &registerServiceImpl{
		runner:     runner,
		engine:     engine,
		cleanup:    cleanupManager,
		dispatcher: d,
		logger:     logger,
	}
}

// SubmitReport correlates one protocol report
func (s *registerServiceImpl) SubmitReport(ctx context.Context, evt *event.Event) error {
	if evt == nil || !evt.Type.IsValid() {
		var t event.Type
		if evt != nil {
			t = evt.Type
		}
		return fmt.Errorf("%w: %q", ErrUnknownReport, t)
	}

	var dispatchErr error
	if err := s.runner.Do(ctx, func() {
		dispatchErr = s.dispatcher.Dispatch(ctx, evt)
	}); err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	if dispatchErr != nil {
		s.logger.Error("Report dispatch failed", "event_id", evt.ID, "type", evt.Type, "error", dispatchErr)
		return fmt.Errorf("dispatch report: %w", dispatchErr)
	}
	return nil
}

// BeginSend registers an operator send
func (s *registerServiceImpl) BeginSend(ctx context.Context, req correlator.SendRequest) ([]*entity.Row, error) {
	var rows []*entity.Row
	var sendErr error
	if err := s.runner.Do(ctx, func() {
		rows, sendErr = s.engine.BeginSend(ctx, req)
	}); err != nil {
		return nil, fmt.Errorf("begin send: %w", err)
	}
	if sendErr != nil {
		return nil, sendErr
	}

	s.logger.Info("Send started", "reference", req.Reference, "rows", len(rows))
	return rows, nil
}

// ListRows returns a snapshot of the register
func (s *registerServiceImpl) ListRows(ctx context.Context) ([]*entity.Row, error) {
	var rows []*entity.Row
	if err := s.runner.Do(ctx, func() {
		rows = s.engine.Rows().All()
	}); err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return rows, nil
}

// GetRow returns a snapshot of one row
func (s *registerServiceImpl) GetRow(ctx context.Context, id int64) (*entity.Row, error) {
	var row *entity.Row
	var found bool
	if err := s.runner.Do(ctx, func() {
		row, found = s.engine.Rows().Snapshot(id)
	}); err != nil {
		return nil, fmt.Errorf("get row: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", store.ErrRowNotFound, id)
	}
	return row, nil
}

// ListAttachments returns the records of a group in creation order together
// with the status of the send as a whole
func (s *registerServiceImpl) ListAttachments(ctx context.Context, groupKey int64) ([]*entity.AttachmentRecord, workflow.State, error) {
	var records []*entity.AttachmentRecord
	var status workflow.State
	if err := s.runner.Do(ctx, func() {
		records = s.engine.Attachments().ListGroup(groupKey)
		status, _ = s.engine.SendStatus(groupKey)
	}); err != nil {
		return nil, "", fmt.Errorf("list attachments: %w", err)
	}
	if len(records) == 0 {
		return nil, "", fmt.Errorf("%w: %d", ErrGroupNotFound, groupKey)
	}
	return records, status, nil
}

// DeleteRows removes rows and whatever only they referenced
func (s *registerServiceImpl) DeleteRows(ctx context.Context, ids ...int64) error {
	var cleanupErr error
	if err := s.runner.Do(ctx, func() {
		cleanupErr = s.engine.Atomically(ctx, func(ctx context.Context) error {
			return s.cleanup.RemoveRows(ctx, ids...)
		})
	}); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}
	if cleanupErr != nil {
		s.logger.Error("Row deletion incomplete", "row_ids", ids, "error", cleanupErr)
		return cleanupErr
	}
	return nil
}

// MarkSaved records an operator save of a downloaded file
func (s *registerServiceImpl) MarkSaved(ctx context.Context, key entity.AttachmentKey, location string) error {
	var saveErr error
	if err := s.runner.Do(ctx, func() {
		saveErr = s.engine.Atomically(ctx, func(ctx context.Context) error {
			return s.cleanup.MarkSaved(ctx, key, location)
		})
	}); err != nil {
		return fmt.Errorf("mark saved: %w", err)
	}
	return saveErr
}

// Cleanup runs the end of session cleanup
func (s *registerServiceImpl) Cleanup(ctx context.Context) error {
	var cleanupErr error
	if err := s.runner.Do(ctx, func() {
		cleanupErr = s.engine.Atomically(ctx, func(ctx context.Context) error {
			return s.cleanup.FullCleanup(ctx)
		})
	}); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if cleanupErr != nil {
		s.logger.Error("Cleanup finished with errors", "error", cleanupErr)
	}
	return cleanupErr
}
