package workflow

// Trigger is a protocol outcome that moves a file record between states
type Trigger string

const (
	// receive side
	TriggerIncoming              Trigger = "INCOMING"
	TriggerIncomingFailed        Trigger = "INCOMING_FAILED"
	TriggerDownloaded            Trigger = "DOWNLOADED"
	TriggerDownloadedToUserStore Trigger = "DOWNLOADED_TO_USER_STORE"
	TriggerDownloadFailed        Trigger = "DOWNLOAD_FAILED"
	TriggerDownloadGone          Trigger = "DOWNLOAD_GONE"
	TriggerSavedByUser           Trigger = "SAVED_BY_USER"

	// send side
	TriggerUploadProgress     Trigger = "UPLOAD_PROGRESS"
	TriggerUploadFailedLocal  Trigger = "UPLOAD_FAILED_LOCAL"
	TriggerUploadAcked        Trigger = "UPLOAD_ACKED"
	TriggerUploadRejected     Trigger = "UPLOAD_REJECTED"
	TriggerRecipientFetched   Trigger = "RECIPIENT_FETCHED"
	TriggerRecipientFetchFail Trigger = "RECIPIENT_FETCH_FAIL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
