package correlator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wholeSend(ref int, extra map[string]interface{}) map[string]interface{} {
	p := map[string]interface{}{event.FieldReference: ref}
	identityFields(event.FieldCaller, console, p)
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func TestOutbound_TwoFilesTwoRecipients(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, twoFileSend(5, alice, bob))
	group := rows[0].GroupKey

	te.report(t, event.TypeSendResult, wholeSend(5, map[string]interface{}{event.FieldSuccess: true}))
	for _, rec := range te.Attachments().ListGroup(group) {
		assert.Equal(t, workflow.StateUploaded, rec.State)
	}
	assert.Equal(t, workflow.StateSending, te.row(t, rows[0].ID).Status)

	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f1", true, 0, ""))
	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f2", true, 0, ""))
	te.report(t, event.TypeRecipientResult, recipientResult(5, bob, "f1", false, 0, "Terminal storage full"))
	te.report(t, event.TypeRecipientResult, recipientResult(5, bob, "f2", true, 0, ""))

	first := te.row(t, rows[0].ID)
	second := te.row(t, rows[1].ID)
	assert.Equal(t, workflow.StateSent, first.Status)
	assert.Equal(t, workflow.StatePartialFailure, second.Status)
	assert.Equal(t, "Terminal storage full", second.StatusDetail)

	assert.Len(t, te.Attachments().ListGroup(group), 4)
	failed := te.record(t, entity.AttachmentKey{GroupKey: group, Party: bob, FileID: "f1"})
	assert.Equal(t, workflow.StateRecipientDownloadFailed, failed.State)
	assert.Equal(t, []string{"Terminal storage full"}, failed.Info)

	require.Len(t, te.observer.notes, 1)
	assert.Contains(t, te.observer.notes[0], "Terminal storage full")

	status, ok := te.SendStatus(group)
	require.True(t, ok)
	assert.Equal(t, workflow.StatePartialFailure, status)
}

func TestOutbound_RecipientReportTouchesOneRow(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, twoFileSend(5, alice, bob))
	group := rows[0].GroupKey

	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f1", false, 0, "Rejected by terminal"))

	assert.Equal(t, workflow.StateRecipientDownloadFailed,
		te.record(t, entity.AttachmentKey{GroupKey: group, Party: alice, FileID: "f1"}).State)
	assert.Equal(t, workflow.StateSending,
		te.record(t, entity.AttachmentKey{GroupKey: group, Party: bob, FileID: "f1"}).State)
	assert.Equal(t, workflow.StatePartialFailure, te.row(t, rows[0].ID).Status)
	assert.Equal(t, workflow.StateSending, te.row(t, rows[1].ID).Status)
}

func TestOutbound_NetworkErrorNotifiedOncePerSend(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, twoFileSend(5, alice, bob))

	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f1", false, event.ResultDestinationUnreachable, ""))
	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f2", false, event.ResultDestinationUnreachable, ""))
	te.report(t, event.TypeRecipientResult, recipientResult(5, bob, "f1", false, event.ResultDestinationUnreachable, ""))

	require.Len(t, te.observer.notes, 1)
	assert.Contains(t, te.observer.notes[0], "Destination unreachable")

	assert.Equal(t, workflow.StateFailed, te.row(t, rows[0].ID).Status)
	second := te.row(t, rows[1].ID)
	assert.Equal(t, workflow.StatePartialFailure, second.Status)
	assert.True(t, second.HasNotified("Destination unreachable"))

	// a different, file specific reason is still surfaced
	te.report(t, event.TypeRecipientResult, recipientResult(5, bob, "f2", false, 0, "Unsupported format"))
	require.Len(t, te.observer.notes, 2)
	assert.Contains(t, te.observer.notes[1], "Unsupported format")
	assert.Equal(t, workflow.StateFailed, te.row(t, rows[1].ID).Status)
}

func TestOutbound_RetrySucceedsClearsError(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, twoFileSend(5, alice))
	key := entity.AttachmentKey{GroupKey: rows[0].GroupKey, Party: alice, FileID: "f1"}

	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f1", false, 0, "Busy"))
	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f1", false, 0, "Busy again"))
	assert.Equal(t, []string{"Busy again"}, te.record(t, key).Info)

	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f1", true, 0, ""))
	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f2", true, 0, ""))

	rec := te.record(t, key)
	assert.Equal(t, workflow.StateRecipientDownloaded, rec.State)
	assert.Empty(t, rec.Info)
	row := te.row(t, rows[0].ID)
	assert.Equal(t, workflow.StateSent, row.Status)
	assert.Empty(t, row.StatusDetail)
}

func TestOutbound_StaleReportIgnored(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, twoFileSend(5, alice))
	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f1", true, 0, ""))
	te.report(t, event.TypeRecipientResult, recipientResult(5, alice, "f2", true, 0, ""))
	require.Equal(t, workflow.StateSent, te.row(t, rows[0].ID).Status)

	te.report(t, event.TypeUploadProgress, wholeSend(5, nil))
	te.report(t, event.TypeSendResult, wholeSend(5, map[string]interface{}{
		event.FieldMessageID: "f1",
		event.FieldSuccess:   false,
		event.FieldError:     "late rejection",
	}))

	for _, rec := range te.Attachments().ListGroup(rows[0].GroupKey) {
		assert.Equal(t, workflow.StateRecipientDownloaded, rec.State)
	}
	assert.Equal(t, workflow.StateSent, te.row(t, rows[0].ID).Status)
	assert.Empty(t, te.observer.notes)
}

func TestOutbound_LocalUploadFailure(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, twoFileSend(5, alice, bob))

	te.report(t, event.TypeUploadLocalFailed, wholeSend(5, map[string]interface{}{
		event.FieldError: "File not readable",
	}))

	for _, rec := range te.Attachments().ListGroup(rows[0].GroupKey) {
		assert.Equal(t, workflow.StateUploadFailed, rec.State)
		assert.Equal(t, []string{"File not readable"}, rec.Info)
	}
	assert.Equal(t, workflow.StateFailed, te.row(t, rows[0].ID).Status)
	assert.Equal(t, workflow.StateFailed, te.row(t, rows[1].ID).Status)
	assert.Len(t, te.observer.notes, 1, "one notification for the whole send")
}

func TestOutbound_UploadProgressAndAck(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, twoFileSend(5, alice))
	key := entity.AttachmentKey{GroupKey: rows[0].GroupKey, Party: alice, FileID: "f2"}

	te.report(t, event.TypeUploadProgress, wholeSend(5, map[string]interface{}{event.FieldMessageID: "f2"}))
	assert.Equal(t, workflow.StateUploading, te.record(t, key).State)

	te.report(t, event.TypeSendResult, wholeSend(5, map[string]interface{}{
		event.FieldAckID:   "f2",
		event.FieldSuccess: true,
	}))
	assert.Equal(t, workflow.StateUploaded, te.record(t, key).State)
	assert.Equal(t, workflow.StateSending,
		te.record(t, entity.AttachmentKey{GroupKey: rows[0].GroupKey, Party: alice, FileID: "f1"}).State)
}

func TestOutbound_TextOnly(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, SendRequest{
		Kind:       entity.KindMMS,
		Caller:     console,
		Recipients: []entity.Identity{alice, bob},
		Reference:  11,
		Body:       "Shift change at 18:00",
	})

	te.report(t, event.TypeSendResult, wholeSend(11, map[string]interface{}{
		event.FieldSuccess: false,
		event.FieldError:   "Message rejected by server",
	}))

	for _, row := range rows {
		got := te.row(t, row.ID)
		assert.Equal(t, workflow.StateFailed, got.Status)
		assert.Equal(t, "Message rejected by server", got.StatusDetail)
	}
	assert.Equal(t, 0, te.Attachments().Len())
}

func TestOutbound_UnknownSendIgnored(t *testing.T) {
	te := newTestEngine(t)
	te.send(t, twoFileSend(5, alice))

	te.report(t, event.TypeRecipientResult, recipientResult(6, alice, "f1", true, 0, ""))
	te.report(t, event.TypeRecipientResult, recipientResult(5, carol, "f1", true, 0, ""))

	for _, rec := range te.Attachments().All() {
		assert.Equal(t, workflow.StateSending, rec.State)
	}
}

func TestOutbound_NumericFileIDAddressesOneFile(t *testing.T) {
	te := newTestEngine(t)
	rows := te.send(t, SendRequest{
		Kind:       entity.KindMMS,
		Caller:     console,
		Recipients: []entity.Identity{alice},
		Reference:  8,
		Files: []OutboundFile{
			{FileID: "101", Name: "scene.jpg"},
			{FileID: "102", Name: "report.pdf"},
		},
	})
	group := rows[0].GroupKey
	te.report(t, event.TypeSendResult, wholeSend(8, map[string]interface{}{event.FieldSuccess: true}))

	var evt event.Event
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "recipient.result",
		"payload": {
			"reference": 8,
			"caller": "D1", "caller_type": "DISPATCHER",
			"called": 1001, "called_type": "ISSI",
			"message_id": 101,
			"success": false,
			"error": "Terminal storage full"
		}
	}`), &evt))
	require.NoError(t, te.dispatcher.Dispatch(context.Background(), &evt))

	failed := te.record(t, entity.AttachmentKey{GroupKey: group, Party: alice, FileID: "101"})
	untouched := te.record(t, entity.AttachmentKey{GroupKey: group, Party: alice, FileID: "102"})
	assert.Equal(t, workflow.StateRecipientDownloadFailed, failed.State)
	assert.Equal(t, workflow.StateUploaded, untouched.State)
	assert.Len(t, te.Attachments().ListGroup(group), 2)

	// one of two files failed, so the row is not FAILED
	assert.Equal(t, workflow.StatePartialFailure, te.row(t, rows[0].ID).Status)
}
