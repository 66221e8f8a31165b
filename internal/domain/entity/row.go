package entity

import (
	"time"

	"github.com/garyjia/dispatch-register/internal/domain/workflow"
)

// MessageKind is the type of traffic a register row shows
type MessageKind string

const (
	KindSDS    MessageKind = "SDS"
	KindMMS    MessageKind = "MMS"
	KindStatus MessageKind = "STATUS"
)

// Direction of a register row
type Direction string

const (
	DirectionIn        Direction = "in"
	DirectionOut       Direction = "out"
	DirectionMonitored Direction = "monitored"
)

// Row is one line of the communications register
type Row struct {
	ID           int64          `json:"id"`
	Kind         MessageKind    `json:"kind"`
	Direction    Direction      `json:"direction"`
	Timestamp    time.Time      `json:"timestamp"`
	Caller       Identity       `json:"caller"`
	Called       Identity       `json:"called"`
	Body         string         `json:"body,omitempty"`
	Status       workflow.State `json:"status"`
	StatusDetail string         `json:"status_detail,omitempty"`
	GroupKey     int64          `json:"group_key"`
	Reference    int            `json:"reference"`
	PendingAckID string         `json:"pending_ack_id,omitempty"`

	// Notified holds error texts already surfaced to the operator for this row
	Notified []string `json:"notified,omitempty"`

	// MonitoredCopy is set when the network reported our own send back as a
	// monitored copy
	MonitoredCopy bool `json:"monitored_copy,omitempty"`
}

// HasAttachments returns true if the row belongs to a file transfer
func (r *Row) HasAttachments() bool {
	return r.GroupKey != 0
}

// IsOutbound returns true for rows created by a local send
func (r *Row) IsOutbound() bool {
	return r.Direction == DirectionOut
}

// IsReceived returns true for inbound and monitored rows
func (r *Row) IsReceived() bool {
	return r.Direction == DirectionIn || r.Direction == DirectionMonitored
}

// HasNotified returns true if the error text was already surfaced for this row
func (r *Row) HasNotified(text string) bool {
	for _, n := range r.Notified {
		if n == text {
			return true
		}
	}
	return false
}

// StatusLabel returns the text shown in the register's status column
func (r *Row) StatusLabel() string {
	switch r.Status {
	case workflow.StateSending:
		return "Sending"
	case workflow.StateSent:
		return "Sent"
	case workflow.StateFailed:
		return "Failed"
	case workflow.StatePartialFailure:
		return "Partially failed"
	case workflow.StateTextReceived:
		return "Received"
	default:
		return string(r.Status)
	}
}

// Clone returns a deep copy safe to hand out of the store
func (r *Row) Clone() *Row {
	c := *r
	c.Notified = append([]string(nil), r.Notified...)
	return &c
}
