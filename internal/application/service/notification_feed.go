package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
)

// DefaultFeedSize is the number of notifications kept when none is configured
const DefaultFeedSize = 100

// Notification is one failure message surfaced to the operator
type Notification struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// NotificationFeed receives engine change notifications. Failures are kept
// in a bounded list for the operator API; row and attachment changes are
// only logged.
type NotificationFeed struct {
	mu      sync.RWMutex
	entries []Notification
	limit   int
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationFeed creates a feed keeping at most limit notifications
func NewNotificationFeed(limit int, logger *zap.Logger) *NotificationFeed {
	if limit <= 0 {
		limit = DefaultFeedSize
	}
	return &NotificationFeed{
		limit:  limit,
		logger: logger,
		now:    time.Now,
	}
}

func (f *NotificationFeed) OnRowChanged(rowID int64) {
	f.logger.Debug("Row changed", zap.Int64("row_id", rowID))
}

func (f *NotificationFeed) OnRowRemoved(rowID int64) {
	f.logger.Debug("Row removed", zap.Int64("row_id", rowID))
}

func (f *NotificationFeed) OnAttachmentChanged(key entity.AttachmentKey) {
	f.logger.Debug("Attachment changed",
		zap.Int64("group_key", key.GroupKey),
		zap.String("party", key.Party.String()),
		zap.String("file_id", key.FileID))
}

// OnNotify records a failure message, dropping the oldest when full
func (f *NotificationFeed) OnNotify(message string) {
	f.logger.Warn("Operator notification", zap.String("message", message))

	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, Notification{Message: message, Time: f.now()})
	if over := len(f.entries) - f.limit; over > 0 {
		f.entries = append([]Notification(nil), f.entries[over:]...)
	}
}

// Recent returns the kept notifications, oldest first
func (f *NotificationFeed) Recent() []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Notification, len(f.entries))
	copy(out, f.entries)
	return out
}
