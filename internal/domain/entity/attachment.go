package entity

import "github.com/garyjia/dispatch-register/internal/domain/workflow"

// AttachmentKey identifies one file of one send or receive operation.
// Party is the called party of the row the file belongs to, so one
// multi-recipient send keeps a separate record per recipient.
type AttachmentKey struct {
	GroupKey int64    `json:"group_key"`
	Party    Identity `json:"party"`
	FileID   string   `json:"file_id"`
}

// TransferRequest is the retained copy of the report that started an
// in-flight download; a retry is issued from it
type TransferRequest struct {
	Reference int      `json:"reference"`
	Caller    Identity `json:"caller"`
	FileID    string   `json:"file_id"`
	FileName  string   `json:"file_name"`
	URL       string   `json:"url"`
	Size      int64    `json:"size"`
}

// AttachmentRecord is the transfer state of one physical file
type AttachmentRecord struct {
	Key      AttachmentKey  `json:"key"`
	Seq      int64          `json:"seq"`
	State    workflow.State `json:"state"`
	FileName string         `json:"file_name"`
	Path     string         `json:"path"`
	Size     int64          `json:"size"`
	Info     []string       `json:"info,omitempty"`

	// ErrorEntry is the 1-based position in Info of the current error text, 0 if none
	ErrorEntry int `json:"error_entry,omitempty"`

	Request *TransferRequest `json:"request,omitempty"`
}

// LogInfo appends a human readable line to the info log
func (a *AttachmentRecord) LogInfo(text string) {
	a.Info = append(a.Info, text)
}

// AppendError logs a new error text and makes it the current error entry
func (a *AttachmentRecord) AppendError(text string) {
	a.Info = append(a.Info, text)
	a.ErrorEntry = len(a.Info)
}

// ReplaceError overwrites the current error entry, or appends one if there is none
func (a *AttachmentRecord) ReplaceError(text string) {
	if a.ErrorEntry > 0 && a.ErrorEntry <= len(a.Info) {
		a.Info[a.ErrorEntry-1] = text
		return
	}
	a.AppendError(text)
}

// ClearError removes the current error entry from the info log
func (a *AttachmentRecord) ClearError() {
	if a.ErrorEntry > 0 && a.ErrorEntry <= len(a.Info) {
		i := a.ErrorEntry - 1
		a.Info = append(a.Info[:i], a.Info[i+1:]...)
	}
	a.ErrorEntry = 0
}

// LastInfo returns the newest info line
func (a *AttachmentRecord) LastInfo() string {
	if len(a.Info) == 0 {
		return ""
	}
	return a.Info[len(a.Info)-1]
}

// IsCached returns true while a copy of the file occupies the private cache
func (a *AttachmentRecord) IsCached() bool {
	return a.State.IsCached() && a.Path != ""
}

// ForgetCachedCopy records that the cached file was deleted. The state is
// kept so the register still shows the download succeeded.
func (a *AttachmentRecord) ForgetCachedCopy() {
	a.Path = ""
	a.LogInfo(CachedCopyRemoved)
}

// CachedCopyRemoved is the info line logged when a cached file is deleted
const CachedCopyRemoved = "Cached copy removed"

// Clone returns a deep copy safe to hand out of the store
func (a *AttachmentRecord) Clone() *AttachmentRecord {
	c := *a
	c.Info = append([]string(nil), a.Info...)
	if a.Request != nil {
		req := *a.Request
		c.Request = &req
	}
	return &c
}
