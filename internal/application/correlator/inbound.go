package correlator

import (
	"context"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

// matchInbound finds the received row a report belongs to. Reference and
// caller alone are not enough: one send may reach this console directly and
// through several monitored groups, so the called party must match too.
func (e *Engine) matchInbound(r event.Report) *entity.Row {
	matches := e.rows.Find(func(row *entity.Row) bool {
		if !row.IsReceived() || row.Kind != r.Kind || row.Reference != r.Reference {
			return false
		}
		if !row.Caller.Equal(r.Caller) {
			return false
		}
		switch {
		case !r.Group.IsZero():
			return row.Called.Equal(r.Group)
		case !r.Called.IsZero():
			return row.Called.Equal(r.Called)
		default:
			return row.Called.IsDispatcher()
		}
	})
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

func (e *Engine) inboundCalled(r event.Report) entity.Identity {
	switch {
	case !r.Group.IsZero():
		return r.Group
	case !r.Called.IsZero():
		return r.Called
	default:
		return e.config.LocalIdentity
	}
}

// handleFileIncoming registers a newly announced file of a received send
func (e *Engine) handleFileIncoming(ctx context.Context, r event.Report) {
	row := e.matchInbound(r)
	if row == nil {
		direction := entity.DirectionIn
		if r.Monitored {
			direction = entity.DirectionMonitored
		}
		row = e.insertRow(ctx, &entity.Row{
			Kind:      r.Kind,
			Direction: direction,
			Timestamp: r.ReceivedAt,
			Caller:    r.Caller,
			Called:    e.inboundCalled(r),
			Body:      r.Body,
			Status:    workflow.StateTextReceived,
			GroupKey:  e.rows.NewGroupKey(),
			Reference: r.Reference,
		})
		e.logger.Info("Inbound transfer row created",
			zap.Int64("row_id", row.ID),
			zap.Int("reference", r.Reference),
			zap.String("caller", r.Caller.String()))
	} else if row.GroupKey == 0 {
		row.GroupKey = e.rows.NewGroupKey()
		e.saveRow(ctx, row)
	}

	if !r.HasFile() {
		return
	}

	key := entity.AttachmentKey{GroupKey: row.GroupKey, Party: row.Called, FileID: r.FileID()}
	rec, ok := e.attachments.Get(key)
	if !ok {
		rec = &entity.AttachmentRecord{
			Key:      key,
			State:    workflow.StateDownloading,
			FileName: r.FileName,
			Path:     r.Path,
			Size:     r.FileSize,
		}
		if r.Failed() {
			rec.State = workflow.StateDownloadFailed
			rec.AppendError(r.ErrorText())
		}
		retainRequest(rec, r)
		e.saveRecord(ctx, rec)
		return
	}

	trigger := workflow.TriggerIncoming
	if r.Failed() {
		trigger = workflow.TriggerIncomingFailed
	}
	if _, ok := e.fire(rec, trigger); !ok {
		return
	}
	if r.Failed() {
		recordError(rec, r.ErrorText())
	} else if r.Path != "" {
		rec.Path = r.Path
	}
	retainRequest(rec, r)
	e.saveRecord(ctx, rec)
}

// handleTransferFinished applies the outcome of one file download
func (e *Engine) handleTransferFinished(ctx context.Context, r event.Report) {
	row := e.matchInbound(r)
	if row == nil {
		e.logger.Info("Transfer report for unknown row ignored",
			zap.Int("reference", r.Reference),
			zap.String("caller", r.Caller.String()),
			zap.String("file_id", r.FileID()))
		return
	}
	if !r.HasFile() || row.GroupKey == 0 {
		e.logger.Warn("Transfer report without file ignored",
			zap.Int64("row_id", row.ID),
			zap.Int("reference", r.Reference))
		return
	}

	key := entity.AttachmentKey{GroupKey: row.GroupKey, Party: row.Called, FileID: r.FileID()}
	rec, ok := e.attachments.Get(key)
	if !ok {
		rec = &entity.AttachmentRecord{
			Key:      key,
			State:    workflow.StateDownloading,
			FileName: r.FileName,
			Size:     r.FileSize,
		}
		retainRequest(rec, r)
	}

	trigger := downloadTrigger(r)
	prev, fired := e.fire(rec, trigger)
	if !fired {
		if !ok {
			e.saveRecord(ctx, rec)
		}
		return
	}

	switch trigger {
	case workflow.TriggerDownloaded:
		if r.Path != "" {
			rec.Path = r.Path
		}
	case workflow.TriggerDownloadedToUserStore:
		rec.Path = r.Path
		if rec.Path == "" {
			rec.Path = r.StorageLocation
		}
		if prev != rec.State {
			rec.LogInfo("Saved to " + r.StorageLocation)
		}
	case workflow.TriggerDownloadFailed:
		recordError(rec, r.ErrorText())
	case workflow.TriggerDownloadGone:
		if prev != rec.State {
			recordError(rec, r.ErrorText())
		}
	}
	if rec.FileName == "" {
		rec.FileName = r.FileName
	}

	retainRequest(rec, r)
	e.saveRecord(ctx, rec)
}

func downloadTrigger(r event.Report) workflow.Trigger {
	switch {
	case !r.Failed() && r.StorageLocation != "":
		return workflow.TriggerDownloadedToUserStore
	case !r.Failed():
		return workflow.TriggerDownloaded
	case r.ResultCode == event.ResultFileUnavailable:
		return workflow.TriggerDownloadGone
	default:
		return workflow.TriggerDownloadFailed
	}
}

// retainRequest keeps the originating request while a retry is still
// possible and releases it once the download can no longer be retried
func retainRequest(rec *entity.AttachmentRecord, r event.Report) {
	switch rec.State {
	case workflow.StateDownloading, workflow.StateDownloadFailed:
		if rec.Request == nil {
			rec.Request = &entity.TransferRequest{
				Reference: r.Reference,
				Caller:    r.Caller,
				FileID:    r.FileID(),
				FileName:  r.FileName,
				URL:       r.Path,
				Size:      r.FileSize,
			}
		}
	default:
		rec.Request = nil
	}
}

// handleMessageIncoming registers a received plain text or status message
func (e *Engine) handleMessageIncoming(ctx context.Context, r event.Report) {
	if row := e.matchInbound(r); row != nil {
		e.logger.Debug("Duplicate incoming message ignored",
			zap.Int64("row_id", row.ID),
			zap.Int("reference", r.Reference))
		return
	}

	direction := entity.DirectionIn
	if r.Monitored {
		direction = entity.DirectionMonitored
	}
	row := e.insertRow(ctx, &entity.Row{
		Kind:      r.Kind,
		Direction: direction,
		Timestamp: r.ReceivedAt,
		Caller:    r.Caller,
		Called:    e.inboundCalled(r),
		Body:      r.Body,
		Status:    workflow.StateTextReceived,
		Reference: r.Reference,
	})
	e.logger.Info("Incoming message registered",
		zap.Int64("row_id", row.ID),
		zap.String("kind", string(row.Kind)),
		zap.String("caller", row.Caller.String()))
}
