package event

import (
	"time"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
)

// Payload field names of protocol reports
const (
	FieldReference       = "reference"
	FieldCaller          = "caller"
	FieldCallerType      = "caller_type"
	FieldCalled          = "called"
	FieldCalledType      = "called_type"
	FieldGroup           = "group"
	FieldMessageID       = "message_id"
	FieldAckID           = "ack_id"
	FieldFileName        = "file_name"
	FieldFileSize        = "file_size"
	FieldPath            = "path"
	FieldStorageLocation = "storage_location"
	FieldSuccess         = "success"
	FieldResultCode      = "result_code"
	FieldError           = "error"
	FieldKind            = "kind"
	FieldMonitored       = "monitored"
	FieldBody            = "body"
)

// Result codes carried in the result_code field
const (
	ResultOK                     = 0
	ResultDestinationUnreachable = 1
	ResultFileUnavailable        = 2
	ResultNetworkFailure         = 3
)

// Report is the immutable, typed view of one protocol event. It is extracted
// once at the boundary; correlators never touch the raw payload.
type Report struct {
	Type       Type
	EventID    string
	ReceivedAt time.Time

	Reference int
	Caller    entity.Identity
	Called    entity.Identity
	Group     entity.Identity

	MessageID       string
	AckID           string
	FileName        string
	FileSize        int64
	Path            string
	StorageLocation string

	HasResult  bool
	Success    bool
	ResultCode int
	Error      string

	Kind      entity.MessageKind
	Monitored bool
	Body      string
}

// ExtractReport reads the correlation fields out of a protocol event
func ExtractReport(evt *Event) Report {
	r := Report{
		Type:            evt.Type,
		EventID:         evt.ID,
		ReceivedAt:      evt.Timestamp,
		Reference:       int(evt.GetPayloadInt(FieldReference)),
		Caller:          identityField(evt, FieldCaller, FieldCallerType),
		Called:          identityField(evt, FieldCalled, FieldCalledType),
		MessageID:       evt.GetPayloadID(FieldMessageID),
		AckID:           evt.GetPayloadID(FieldAckID),
		FileName:        evt.GetPayloadString(FieldFileName),
		FileSize:        evt.GetPayloadInt(FieldFileSize),
		Path:            evt.GetPayloadString(FieldPath),
		StorageLocation: evt.GetPayloadString(FieldStorageLocation),
		HasResult:       evt.Has(FieldSuccess),
		Success:         evt.GetPayloadBool(FieldSuccess),
		ResultCode:      int(evt.GetPayloadInt(FieldResultCode)),
		Error:           evt.GetPayloadString(FieldError),
		Kind:            entity.MessageKind(evt.GetPayloadString(FieldKind)),
		Monitored:       evt.GetPayloadBool(FieldMonitored),
		Body:            evt.GetPayloadString(FieldBody),
	}
	if group := evt.GetPayloadID(FieldGroup); group != "" {
		r.Group = entity.NewIdentity(group, entity.IdentityGSSI)
	}
	if r.Kind == "" {
		r.Kind = defaultKind(evt.Type)
	}
	return r
}

// defaultKind is the message kind of a report that does not name one. Plain
// message reports are SDS, everything else concerns multi-file transfers.
func defaultKind(t Type) entity.MessageKind {
	switch t {
	case TypeMessageAck, TypeMessageSendComplete, TypeMessageMonitoredCopy, TypeMessageIncoming:
		return entity.KindSDS
	default:
		return entity.KindMMS
	}
}

func identityField(evt *Event, idKey, typeKey string) entity.Identity {
	id := evt.GetPayloadID(idKey)
	if id == "" {
		return entity.Identity{}
	}
	return entity.NewIdentity(id, entity.IdentityType(evt.GetPayloadString(typeKey)))
}

// FileID returns the id of the file-carrying message. The acknowledgement id
// refers to the exact request being confirmed and wins over the message id.
func (r Report) FileID() string {
	if r.AckID != "" {
		return r.AckID
	}
	return r.MessageID
}

// HasFile returns true if the report concerns one specific file
func (r Report) HasFile() bool {
	return r.FileID() != ""
}

// Failed returns true if the report carries an unsuccessful result
func (r Report) Failed() bool {
	return r.HasResult && !r.Success
}

// IsNetworkError returns true for failures that are not specific to one file
func (r Report) IsNetworkError() bool {
	return r.ResultCode == ResultDestinationUnreachable || r.ResultCode == ResultNetworkFailure
}

// ErrorText returns the failure text shown to the operator. The text is taken
// verbatim from the report.
func (r Report) ErrorText() string {
	if r.Error != "" {
		return r.Error
	}
	switch r.ResultCode {
	case ResultDestinationUnreachable:
		return "Destination unreachable"
	case ResultFileUnavailable:
		return "File no longer available"
	case ResultNetworkFailure:
		return "Network failure"
	}
	return "Transfer failed"
}
