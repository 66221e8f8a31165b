package correlator

import (
	"context"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

// aggregateStatus derives one row status from the file states of the row's
// recipient. ok is false while files are still in flight; the row then keeps
// its status so it never flips back to SENDING.
func aggregateStatus(records []*entity.AttachmentRecord) (status workflow.State, detail string, ok bool) {
	total := len(records)
	if total == 0 {
		return "", "", false
	}

	done, failed := 0, 0
	for _, rec := range records {
		switch {
		case rec.State.IsDeliveredToRecipient():
			done++
		case rec.State.IsFailedForRecipient():
			failed++
			if rec.ErrorEntry > 0 && rec.ErrorEntry <= len(rec.Info) {
				detail = rec.Info[rec.ErrorEntry-1]
			}
		}
	}

	switch {
	case done == total:
		return workflow.StateSent, "", true
	case failed == total:
		return workflow.StateFailed, detail, true
	case failed > 0:
		return workflow.StatePartialFailure, detail, true
	default:
		return "", "", false
	}
}

func (e *Engine) aggregate(ctx context.Context, row *entity.Row) {
	status, detail, ok := aggregateStatus(e.attachments.PartyRecords(row.GroupKey, row.Called))
	if !ok || (status == row.Status && detail == row.StatusDetail) {
		return
	}

	e.logger.Info("Row status changed",
		zap.Int64("row_id", row.ID),
		zap.String("from", row.Status.String()),
		zap.String("to", status.String()))

	row.Status = status
	row.StatusDetail = detail
	e.saveRow(ctx, row)
}

// SendStatus summarises a whole multi-recipient send over the records of all
// its recipients. ok is false for an unknown group.
func (e *Engine) SendStatus(groupKey int64) (status workflow.State, ok bool) {
	records := e.attachments.GroupRecords(groupKey)
	if len(records) == 0 {
		return "", false
	}
	status, _, resolved := aggregateStatus(records)
	if !resolved {
		return workflow.StateSending, true
	}
	return status, true
}
