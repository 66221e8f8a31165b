package correlator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"go.uber.org/zap"
)

// ErrInvalidSend is returned by BeginSend for a request that cannot be registered
var ErrInvalidSend = errors.New("invalid send request")

// OutboundFile is one file of a send
type OutboundFile struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// SendRequest describes a send issued by the operator
type SendRequest struct {
	Kind       entity.MessageKind `json:"kind"`
	Caller     entity.Identity    `json:"caller"`
	Recipients []entity.Identity  `json:"recipients"`
	Reference  int                `json:"reference"`
	Body       string             `json:"body"`
	Files      []OutboundFile     `json:"files"`
	AckID      string             `json:"ack_id"`
}

// Validate checks the request
func (r SendRequest) Validate() error {
	if len(r.Recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidSend)
	}
	for _, to := range r.Recipients {
		if to.IsZero() {
			return fmt.Errorf("%w: empty recipient", ErrInvalidSend)
		}
	}
	seen := make(map[string]bool, len(r.Files))
	for _, f := range r.Files {
		if f.FileID == "" {
			return fmt.Errorf("%w: file %q has no id", ErrInvalidSend, f.Name)
		}
		if seen[f.FileID] {
			return fmt.Errorf("%w: duplicate file id %s", ErrInvalidSend, f.FileID)
		}
		seen[f.FileID] = true
	}
	return nil
}

// BeginSend registers a send: one SENDING row per recipient, all sharing
// one group key when files are attached, and one record per recipient and file
func (e *Engine) BeginSend(ctx context.Context, req SendRequest) ([]*entity.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = entity.KindSDS
		if len(req.Files) > 0 {
			req.Kind = entity.KindMMS
		}
	}

	var rows []*entity.Row
	_ = e.Atomically(ctx, func(ctx context.Context) error {
		rows = e.registerSend(ctx, req)
		return nil
	})
	e.Flush()
	return rows, nil
}

func (e *Engine) registerSend(ctx context.Context, req SendRequest) []*entity.Row {
	var groupKey int64
	if len(req.Files) > 0 {
		groupKey = e.rows.NewGroupKey()
	}

	now := time.Now()
	rows := make([]*entity.Row, 0, len(req.Recipients))
	for _, to := range req.Recipients {
		row := &entity.Row{
			Kind:      req.Kind,
			Direction: entity.DirectionOut,
			Timestamp: now,
			Caller:    req.Caller,
			Called:    to,
			Body:      req.Body,
			Status:    workflow.StateSending,
			GroupKey:  groupKey,
			Reference: req.Reference,
		}
		if groupKey == 0 {
			row.PendingAckID = req.AckID
		}
		row = e.insertRow(ctx, row)

		for _, f := range req.Files {
			e.saveRecord(ctx, &entity.AttachmentRecord{
				Key:      entity.AttachmentKey{GroupKey: groupKey, Party: to, FileID: f.FileID},
				State:    workflow.StateSending,
				FileName: f.Name,
				Path:     f.Path,
				Size:     f.Size,
			})
		}
		rows = append(rows, row.Clone())
	}

	e.logger.Info("Send registered",
		zap.Int("reference", req.Reference),
		zap.Int("recipients", len(req.Recipients)),
		zap.Int("files", len(req.Files)),
		zap.Int64("group_key", groupKey))
	return rows
}
