package correlator

import (
	"context"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

func (e *Engine) pendingRows(ackID string) []*entity.Row {
	return e.rows.Find(func(row *entity.Row) bool {
		return row.PendingAckID != "" && row.PendingAckID == ackID
	})
}

// handleAck resolves a plain message delivery report. With no recipient on
// the report a row is only resolved when it is the sole holder of the id;
// guessing between several would risk marking the wrong row delivered.
func (e *Engine) handleAck(ctx context.Context, r event.Report) {
	ackID := r.FileID()
	if ackID == "" {
		e.logger.Warn("Acknowledgement without id ignored", zap.String("event_id", r.EventID))
		return
	}

	candidates := e.pendingRows(ackID)
	recipient := recipientOf(r)

	if !recipient.IsZero() {
		for _, row := range candidates {
			if row.Called.Equal(recipient) {
				e.resolve(ctx, row, r)
				return
			}
		}
		e.logger.Debug("No pending row for acknowledgement",
			zap.String("ack_id", ackID),
			zap.String("recipient", recipient.String()))
		return
	}

	switch len(candidates) {
	case 0:
		e.logger.Debug("No pending row for acknowledgement", zap.String("ack_id", ackID))
	case 1:
		e.resolve(ctx, candidates[0], r)
	default:
		e.logger.Warn("Ambiguous acknowledgement ignored",
			zap.String("ack_id", ackID),
			zap.Int("candidates", len(candidates)))
	}
}

func (e *Engine) resolve(ctx context.Context, row *entity.Row, r event.Report) {
	e.cancelRecheck(row.ID)
	row.PendingAckID = ""
	if r.Failed() {
		row.Status = workflow.StateFailed
		row.StatusDetail = r.ErrorText()
	} else {
		row.Status = workflow.StateSent
		row.StatusDetail = ""
	}
	e.saveRow(ctx, row)

	e.logger.Info("Message acknowledgement resolved",
		zap.Int64("row_id", row.ID),
		zap.String("status", row.Status.String()))
}
