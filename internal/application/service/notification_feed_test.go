package service

import (
	"testing"
	"time"

	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNotificationFeed_KeepsMostRecent(t *testing.T) {
	feed := NewNotificationFeed(2, zap.NewNop())
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	feed.now = func() time.Time { return now }

	feed.OnNotify("first")
	feed.OnNotify("second")
	feed.OnNotify("third")

	notes := feed.Recent()
	require.Len(t, notes, 2)
	assert.Equal(t, "second", notes[0].Message)
	assert.Equal(t, "third", notes[1].Message)
	assert.Equal(t, now, notes[1].Time)
}

func TestNotificationFeed_RecentIsACopy(t *testing.T) {
	feed := NewNotificationFeed(0, zap.NewNop())
	feed.OnNotify("upload failed")

	notes := feed.Recent()
	notes[0].Message = "changed"

	assert.Equal(t, "upload failed", feed.Recent()[0].Message)
	assert.Equal(t, DefaultFeedSize, feed.limit)
}

func TestNotificationFeed_LogsChanges(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	feed := NewNotificationFeed(5, zap.New(core))

	feed.OnRowChanged(3)
	feed.OnRowRemoved(3)
	feed.OnAttachmentChanged(entity.AttachmentKey{GroupKey: 1, Party: alice, FileID: "f1"})
	feed.OnNotify("scene.jpg to 1001 failed: Network failure")

	assert.Equal(t, 1, logs.FilterMessage("Row changed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Row removed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Attachment changed").Len())
	warn := logs.FilterMessage("Operator notification").All()
	require.Len(t, warn, 1)
	assert.Equal(t, zap.WarnLevel, warn[0].Level)
}
