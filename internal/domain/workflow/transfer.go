package workflow

// NewTransferTable returns the permitted per-file transitions for both transfer
// directions. Reports for a record may arrive out of order or more than once;
// a report that would move a record backwards is not permitted and the record
// keeps its state.
func NewTransferTable() *Table {
	b := NewBuilder()

	// Receive side
	b.Configure(StateDownloading).
		PermitReentry(TriggerIncoming).
		Permit(TriggerIncomingFailed, StateDownloadFailed).
		Permit(TriggerDownloaded, StateDownloaded).
		Permit(TriggerDownloadedToUserStore, StateDownloadedAndSavedByUser).
		Permit(TriggerDownloadFailed, StateDownloadFailed).
		Permit(TriggerDownloadGone, StateDownloadFailedPermanent)

	b.Configure(StateDownloadFailed).
		Permit(TriggerIncoming, StateDownloading).
		PermitReentry(TriggerIncomingFailed).
		Permit(TriggerDownloaded, StateDownloaded).
		Permit(TriggerDownloadedToUserStore, StateDownloadedAndSavedByUser).
		PermitReentry(TriggerDownloadFailed).
		Permit(TriggerDownloadGone, StateDownloadFailedPermanent)

	b.Configure(StateDownloadFailedPermanent).
		PermitReentry(TriggerDownloadGone)

	b.Configure(StateDownloaded).
		PermitReentry(TriggerDownloaded).
		Permit(TriggerSavedByUser, StateDownloadedAndSaved)

	b.Configure(StateDownloadedAndSaved).
		PermitReentry(TriggerSavedByUser)

	b.Configure(StateDownloadedAndSavedByUser).
		PermitReentry(TriggerDownloadedToUserStore)

	// Send side
	b.Configure(StateSending).
		Permit(TriggerUploadProgress, StateUploading).
		Permit(TriggerUploadFailedLocal, StateUploadFailed).
		Permit(TriggerUploadAcked, StateUploaded).
		Permit(TriggerUploadRejected, StateUploadFailed).
		Permit(TriggerRecipientFetched, StateRecipientDownloaded).
		Permit(TriggerRecipientFetchFail, StateRecipientDownloadFailed)

	b.Configure(StateUploading).
		PermitReentry(TriggerUploadProgress).
		Permit(TriggerUploadFailedLocal, StateUploadFailed).
		Permit(TriggerUploadAcked, StateUploaded).
		Permit(TriggerUploadRejected, StateUploadFailed).
		Permit(TriggerRecipientFetched, StateRecipientDownloaded).
		Permit(TriggerRecipientFetchFail, StateRecipientDownloadFailed)

	b.Configure(StateUploadFailed).
		Permit(TriggerUploadProgress, StateUploading).
		PermitReentry(TriggerUploadFailedLocal).
		PermitReentry(TriggerUploadRejected).
		Permit(TriggerUploadAcked, StateUploaded)

	b.Configure(StateUploaded).
		PermitReentry(TriggerUploadAcked).
		Permit(TriggerRecipientFetched, StateRecipientDownloaded).
		Permit(TriggerRecipientFetchFail, StateRecipientDownloadFailed)

	b.Configure(StateRecipientDownloadFailed).
		PermitReentry(TriggerRecipientFetchFail).
		Permit(TriggerRecipientFetched, StateRecipientDownloaded)

	b.Configure(StateRecipientDownloaded).
		PermitReentry(TriggerRecipientFetched)

	return b.Build()
}
