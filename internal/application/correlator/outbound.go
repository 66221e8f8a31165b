package correlator

import (
	"context"
	"fmt"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

// matchOutbound returns every row one send produced, one per recipient
func (e *Engine) matchOutbound(r event.Report) []*entity.Row {
	return e.rows.Find(func(row *entity.Row) bool {
		if !row.IsOutbound() || row.Reference != r.Reference {
			return false
		}
		return r.Caller.IsZero() || row.Caller.Equal(r.Caller)
	})
}

func recipientOf(r event.Report) entity.Identity {
	if !r.Group.IsZero() {
		return r.Group
	}
	return r.Called
}

// handleWholeSend applies a report about the whole send to every row of it
func (e *Engine) handleWholeSend(ctx context.Context, r event.Report) {
	rows := e.matchOutbound(r)
	if len(rows) == 0 {
		e.logger.Info("Send report for unknown send ignored",
			zap.String("type", r.Type.String()),
			zap.Int("reference", r.Reference))
		return
	}

	var trigger workflow.Trigger
	switch r.Type {
	case event.TypeUploadLocalFailed:
		trigger = workflow.TriggerUploadFailedLocal
	case event.TypeUploadProgress:
		trigger = workflow.TriggerUploadProgress
	default:
		trigger = workflow.TriggerUploadAcked
		if r.Failed() {
			trigger = workflow.TriggerUploadRejected
		}
	}

	notified := make(map[string]bool)
	for _, row := range rows {
		e.applyOutbound(ctx, row, r, trigger, notified)
	}
}

// handleRecipientResult applies a delivery outcome for one recipient. It
// must never touch the rows of the other recipients of the same send.
func (e *Engine) handleRecipientResult(ctx context.Context, r event.Report) {
	recipient := recipientOf(r)
	if recipient.IsZero() {
		e.logger.Warn("Recipient report without recipient ignored",
			zap.Int("reference", r.Reference),
			zap.String("file_id", r.FileID()))
		return
	}

	for _, row := range e.matchOutbound(r) {
		if !row.Called.Equal(recipient) {
			continue
		}
		trigger := workflow.TriggerRecipientFetched
		if r.Failed() {
			trigger = workflow.TriggerRecipientFetchFail
		}
		e.applyOutbound(ctx, row, r, trigger, make(map[string]bool))
		return
	}

	e.logger.Info("Recipient report for unknown row ignored",
		zap.Int("reference", r.Reference),
		zap.String("recipient", recipient.String()))
}

func (e *Engine) applyOutbound(ctx context.Context, row *entity.Row, r event.Report, trigger workflow.Trigger, notified map[string]bool) {
	if !row.HasAttachments() {
		e.applyTextOnly(ctx, row, r, trigger)
		return
	}

	records := e.outboundRecords(ctx, row, r)
	if len(records) == 0 {
		e.logger.Warn("Send report without known files ignored",
			zap.Int64("row_id", row.ID),
			zap.Int("reference", r.Reference))
		return
	}

	failure := trigger == workflow.TriggerUploadFailedLocal ||
		trigger == workflow.TriggerUploadRejected ||
		trigger == workflow.TriggerRecipientFetchFail

	changed, moved := false, false
	for _, rec := range records {
		prev, fired := e.fire(rec, trigger)
		if !fired {
			continue
		}
		switch {
		case failure:
			recordError(rec, r.ErrorText())
		case prev == workflow.StateRecipientDownloadFailed && rec.State == workflow.StateRecipientDownloaded:
			rec.ClearError()
		case prev == workflow.StateUploadFailed && rec.State == workflow.StateUploaded:
			rec.ClearError()
		}
		e.saveRecord(ctx, rec)
		changed = true
		moved = moved || prev != rec.State
	}
	if !changed {
		return
	}

	// a repeated report moves nothing and must not raise a second notification
	if failure && moved {
		e.notifyFailure(ctx, row, r, notified)
	}
	e.aggregate(ctx, row)
}

// outboundRecords returns the records a report addresses for one row: the
// named file, or all files of the row when the report names none
func (e *Engine) outboundRecords(ctx context.Context, row *entity.Row, r event.Report) []*entity.AttachmentRecord {
	if !r.HasFile() {
		return e.attachments.PartyRecords(row.GroupKey, row.Called)
	}

	key := entity.AttachmentKey{GroupKey: row.GroupKey, Party: row.Called, FileID: r.FileID()}
	rec, ok := e.attachments.Get(key)
	if !ok {
		rec = &entity.AttachmentRecord{
			Key:      key,
			State:    workflow.StateSending,
			FileName: r.FileName,
			Path:     r.Path,
			Size:     r.FileSize,
		}
		e.saveRecord(ctx, rec)
		e.logger.Debug("Outbound record created from report",
			zap.Int64("group_key", key.GroupKey),
			zap.String("file_id", key.FileID))
	}
	return []*entity.AttachmentRecord{rec}
}

func (e *Engine) applyTextOnly(ctx context.Context, row *entity.Row, r event.Report, trigger workflow.Trigger) {
	switch trigger {
	case workflow.TriggerUploadProgress:
		return
	case workflow.TriggerUploadAcked, workflow.TriggerRecipientFetched:
		row.Status = workflow.StateSent
		row.StatusDetail = ""
	default:
		row.Status = workflow.StateFailed
		row.StatusDetail = r.ErrorText()
	}
	e.cancelRecheck(row.ID)
	e.saveRow(ctx, row)
}

// notifyFailure raises the operator notification for a failed transfer. A
// network error on a multi-file send is surfaced once for the whole send:
// rows that find the same text already logged in their group stay silent.
func (e *Engine) notifyFailure(ctx context.Context, row *entity.Row, r event.Report, notified map[string]bool) {
	text := r.ErrorText()
	suppress := notified[text]

	if !suppress && r.IsNetworkError() && len(e.attachments.PartyRecords(row.GroupKey, row.Called)) > 1 {
		for _, sibling := range e.rows.GroupRows(row.GroupKey) {
			if sibling.HasNotified(text) {
				suppress = true
				break
			}
		}
	}

	if !row.HasNotified(text) {
		row.Notified = append(row.Notified, text)
		e.saveRow(ctx, row)
	}
	if suppress {
		e.logger.Debug("Duplicate failure notification suppressed",
			zap.Int64("row_id", row.ID),
			zap.String("error", text))
		return
	}

	notified[text] = true
	e.notify(fmt.Sprintf("%s to %s failed: %s", row.Kind, row.Called, text))
}
