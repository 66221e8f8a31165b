package workflow

// State is a delivery state of one transferred file, and in abstracted form the
// displayed status of a register row
type State string

const (
	StateSending                  State = "SENDING"
	StateSent                     State = "SENT"
	StatePartialFailure           State = "PARTIAL_FAILURE"
	StateFailed                   State = "FAILED"
	StateUploading                State = "UPLOADING"
	StateUploadFailed             State = "UPLOAD_FAILED"
	StateUploaded                 State = "UPLOADED"
	StateRecipientDownloadFailed  State = "RECIPIENT_DOWNLOAD_FAILED"
	StateRecipientDownloaded      State = "RECIPIENT_DOWNLOADED"
	StateDownloading              State = "DOWNLOADING"
	StateDownloadFailed           State = "DOWNLOAD_FAILED"
	StateDownloadFailedPermanent  State = "DOWNLOAD_FAILED_PERMANENT"
	StateDownloaded               State = "DOWNLOADED"
	StateDownloadedAndSaved       State = "DOWNLOADED_AND_SAVED"
	StateDownloadedAndSavedByUser State = "DOWNLOADED_AND_SAVED_BY_USER"

	// StateTextReceived is only ever a row status
	StateTextReceived State = "TEXT_RECEIVED"
)

var validStates = map[State]bool{
	StateSending:                  true,
	StateSent:                     true,
	StatePartialFailure:           true,
	StateFailed:                   true,
	StateUploading:                true,
	StateUploadFailed:             true,
	StateUploaded:                 true,
	StateRecipientDownloadFailed:  true,
	StateRecipientDownloaded:      true,
	StateDownloading:              true,
	StateDownloadFailed:           true,
	StateDownloadFailedPermanent:  true,
	StateDownloaded:               true,
	StateDownloadedAndSaved:       true,
	StateDownloadedAndSavedByUser: true,
	StateTextReceived:             true,
}

var terminalStates = map[State]bool{
	StateSent:                     true,
	StateFailed:                   true,
	StateDownloadFailedPermanent:  true,
	StateDownloaded:               true,
	StateDownloadedAndSaved:       true,
	StateDownloadedAndSavedByUser: true,
	StateRecipientDownloaded:      true,
}

// States that keep a copy of the file in the private cache directory
var cachedStates = map[State]bool{
	StateDownloaded:         true,
	StateDownloadedAndSaved: true,
}

// IsTerminal returns true if no further report can move the state forward
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsCached returns true if a file in this state still occupies the local cache
func (s State) IsCached() bool {
	return cachedStates[s]
}

// IsDeliveredToRecipient reports whether the file reached the recipient of an outbound send
func (s State) IsDeliveredToRecipient() bool {
	return s == StateRecipientDownloaded
}

// IsFailedForRecipient reports whether the file can no longer reach the recipient
// of an outbound send without a manual resend
func (s State) IsFailedForRecipient() bool {
	return s == StateRecipientDownloadFailed || s == StateUploadFailed
}

// IsRetryable returns true for remote failures a later retry may still resolve
func (s State) IsRetryable() bool {
	switch s {
	case StateDownloadFailed, StateUploadFailed, StateRecipientDownloadFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known delivery state
func (s State) IsValid() bool {
	return validStates[s]
}
