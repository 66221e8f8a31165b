package correlator

import (
	"context"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

// handleSendComplete reacts to the network confirming a plain message left
// the console. Whether it was a real delivery or only a monitored copy is
// known from a later report, so success is reported after a short delay.
func (e *Engine) handleSendComplete(ctx context.Context, r event.Report) {
	rows := e.rows.Find(func(row *entity.Row) bool {
		if !row.IsOutbound() || row.HasAttachments() || row.PendingAckID == "" {
			return false
		}
		if row.Status != workflow.StateSending {
			return false
		}
		if id := r.FileID(); id != "" {
			return row.PendingAckID == id
		}
		return row.Reference == r.Reference && (r.Caller.IsZero() || row.Caller.Equal(r.Caller))
	})
	if len(rows) == 0 {
		e.logger.Debug("Send completion for unknown message ignored", zap.Int("reference", r.Reference))
		return
	}

	for _, row := range rows {
		if r.Failed() {
			e.cancelRecheck(row.ID)
			row.PendingAckID = ""
			row.Status = workflow.StateFailed
			row.StatusDetail = r.ErrorText()
			e.saveRow(ctx, row)
			continue
		}
		e.scheduleRecheck(row.ID)
	}
}

// handleMonitoredCopy flags outbound rows whose message came back as a
// monitored copy. No row is created for the copy itself.
func (e *Engine) handleMonitoredCopy(ctx context.Context, r event.Report) {
	target := recipientOf(r)
	rows := e.rows.Find(func(row *entity.Row) bool {
		if !row.IsOutbound() || row.Reference != r.Reference {
			return false
		}
		if !r.Caller.IsZero() && !row.Caller.Equal(r.Caller) {
			return false
		}
		return target.IsZero() || row.Called.Equal(target)
	})

	for _, row := range rows {
		if row.MonitoredCopy {
			continue
		}
		row.MonitoredCopy = true
		e.saveRow(ctx, row)
		e.logger.Debug("Row flagged as monitored copy", zap.Int64("row_id", row.ID))
	}
}

func (e *Engine) scheduleRecheck(rowID int64) {
	e.cancelRecheck(rowID)
	e.pending[rowID] = e.scheduler.Schedule(e.config.DeferredDelay, func() {
		_ = e.Atomically(context.Background(), func(ctx context.Context) error {
			e.recheck(ctx, rowID)
			return nil
		})
		e.Flush()
	})
}

func (e *Engine) cancelRecheck(rowID int64) {
	if cancel, ok := e.pending[rowID]; ok {
		cancel()
		delete(e.pending, rowID)
	}
}

// PendingRechecks returns the number of scheduled re-checks
func (e *Engine) PendingRechecks() int {
	return len(e.pending)
}

func (e *Engine) recheck(ctx context.Context, rowID int64) {
	delete(e.pending, rowID)

	row, ok := e.rows.Get(rowID)
	if !ok || row.PendingAckID == "" || row.Status != workflow.StateSending {
		return
	}
	if row.MonitoredCopy {
		e.logger.Debug("Monitored copy is not a delivery, row stays pending", zap.Int64("row_id", rowID))
		return
	}

	// the pending id is kept so a late acknowledgement can still correct the row
	row.Status = workflow.StateSent
	e.saveRow(ctx, row)
}
