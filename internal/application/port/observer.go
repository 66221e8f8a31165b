package port

import (
	"time"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
)

// Observer receives change notifications for the register view. Calls are
// made synchronously on the event loop at the end of each handled report.
type Observer interface {
	OnRowChanged(rowID int64)
	OnRowRemoved(rowID int64)
	OnAttachmentChanged(key entity.AttachmentKey)
	OnNotify(message string)
}

// CancelFunc cancels a scheduled task. It returns false if the task already ran.
type CancelFunc func() bool

// Scheduler runs delayed tasks on the event loop
type Scheduler interface {
	Schedule(delay time.Duration, task func()) CancelFunc
}
