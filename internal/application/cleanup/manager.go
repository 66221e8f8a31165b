// Package cleanup bounds the lifetime of downloaded files kept in the
// private cache directory.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/dispatch-register/internal/application/port"
	"github.com/garyjia/dispatch-register/internal/application/store"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

var (
	// ErrRecordNotFound is returned when an attachment key is not in the store
	ErrRecordNotFound = errors.New("attachment record not found")

	// ErrCachedCopyRemoved is returned for a downloaded file whose cached copy
	// was already deleted
	ErrCachedCopyRemoved = errors.New("cached copy already removed")
)

// Manager deletes cached files and the records of groups no row uses.
// Like the engine it must only be called from the event loop.
type Manager struct {
	rows        *store.RowStore
	attachments *store.AttachmentStore
	files       port.FileStorage
	transitions *workflow.Table
	observer    port.Observer
	logger      *zap.Logger
}

// NewManager creates a cleanup manager. observer may be nil.
func NewManager(
	rows *store.RowStore,
	attachments *store.AttachmentStore,
	files port.FileStorage,
	observer port.Observer,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		rows:        rows,
		attachments: attachments,
		files:       files,
		transitions: workflow.NewTransferTable(),
		observer:    observer,
		logger:      logger,
	}
}

// FullCleanup runs at session end: every cached file is deleted no matter
// which row references it, then records of unreferenced groups are dropped.
// Records of live rows stay, without a cached path.
func (m *Manager) FullCleanup(ctx context.Context) error {
	var errs error
	deleted := 0

	for _, rec := range m.attachments.All() {
		if !rec.IsCached() {
			continue
		}
		if err := m.deleteFile(ctx, rec); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		rec.ForgetCachedCopy()
		m.attachments.Put(ctx, rec)
		if m.observer != nil {
			m.observer.OnAttachmentChanged(rec.Key)
		}
		deleted++
	}

	if err := m.PartialCleanup(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	m.logger.Info("Full cleanup finished",
		zap.Int("files_deleted", deleted),
		zap.Bool("with_errors", errs != nil))
	return errs
}

// RemoveRows deletes rows on user request and drops what they alone referenced
func (m *Manager) RemoveRows(ctx context.Context, ids ...int64) error {
	var errs error
	for _, id := range ids {
		if err := m.rows.Remove(ctx, id); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if m.observer != nil {
			m.observer.OnRowRemoved(id)
		}
		m.logger.Info("Row removed", zap.Int64("row_id", id))
	}

	if err := m.PartialCleanup(ctx); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}

// PartialCleanup deletes the records, and cached files, of every group no
// surviving row references. A record whose file cannot be deleted is kept
// so a later cleanup retries it.
func (m *Manager) PartialCleanup(ctx context.Context) error {
	var errs error
	removed := 0

	for _, groupKey := range m.attachments.GroupKeys() {
		if m.rows.ReferencesGroup(groupKey) {
			continue
		}
		for _, rec := range m.attachments.GroupRecords(groupKey) {
			if rec.IsCached() {
				if err := m.deleteFile(ctx, rec); err != nil {
					errs = errors.Join(errs, err)
					continue
				}
			}
			if err := m.attachments.Delete(ctx, rec.Key); err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			removed++
			if m.observer != nil {
				m.observer.OnAttachmentChanged(rec.Key)
			}
		}
	}

	if removed > 0 {
		m.logger.Info("Unreferenced attachment records removed", zap.Int("count", removed))
	}
	return errs
}

// MarkSaved records that the operator saved a copy of a downloaded file.
// The cached copy stays until the next cleanup.
func (m *Manager) MarkSaved(ctx context.Context, key entity.AttachmentKey, location string) error {
	rec, ok := m.attachments.Get(key)
	if !ok {
		return fmt.Errorf("%w: group %d file %s", ErrRecordNotFound, key.GroupKey, key.FileID)
	}

	if rec.State.IsCached() && !rec.IsCached() {
		return fmt.Errorf("%w: group %d file %s", ErrCachedCopyRemoved, key.GroupKey, key.FileID)
	}

	next, err := m.transitions.Next(rec.State, workflow.TriggerSavedByUser)
	if err != nil {
		return fmt.Errorf("cannot mark %s as saved: %w", key.FileID, err)
	}
	if next != rec.State {
		rec.State = next
		rec.LogInfo("Saved to " + location)
	}
	m.attachments.Put(ctx, rec)

	if m.observer != nil {
		m.observer.OnAttachmentChanged(key)
	}
	m.logger.Info("Attachment saved by operator",
		zap.Int64("group_key", key.GroupKey),
		zap.String("file_id", key.FileID),
		zap.String("location", location))
	return nil
}

func (m *Manager) deleteFile(ctx context.Context, rec *entity.AttachmentRecord) error {
	if rec.Path == "" {
		return nil
	}
	if err := m.files.Delete(ctx, rec.Path); err != nil {
		m.logger.Error("Failed to delete cached file",
			zap.Int64("group_key", rec.Key.GroupKey),
			zap.String("file_id", rec.Key.FileID),
			zap.String("path", rec.Path),
			zap.Error(err))
		return fmt.Errorf("failed to delete cached file %s: %w", rec.Path, err)
	}
	m.logger.Debug("Cached file deleted", zap.String("path", rec.Path))
	return nil
}
