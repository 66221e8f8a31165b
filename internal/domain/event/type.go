package event

// Type identifies the kind of protocol report
type Type string

const (
	TypeFileIncoming         Type = "file.incoming"
	TypeFileTransferFinished Type = "file.transfer_finished"
	TypeUploadLocalFailed    Type = "upload.local_failed"
	TypeUploadProgress       Type = "upload.progress"
	TypeSendResult           Type = "send.result"
	TypeRecipientResult      Type = "recipient.result"
	TypeMessageAck           Type = "message.ack"
	TypeMessageSendComplete  Type = "message.send_complete"
	TypeMessageMonitoredCopy Type = "message.monitored_copy"
	TypeMessageIncoming      Type = "message.incoming"
)

// AllTypes lists every report type the engine routes
var AllTypes = []Type{
	TypeFileIncoming,
	TypeFileTransferFinished,
	TypeUploadLocalFailed,
	TypeUploadProgress,
	TypeSendResult,
	TypeRecipientResult,
	TypeMessageAck,
	TypeMessageSendComplete,
	TypeMessageMonitoredCopy,
	TypeMessageIncoming,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}
