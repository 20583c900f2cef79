// ABOUTME: Tests for the single-flight send lifecycle
// ABOUTME: Verifies drafts survive until a positive acknowledgement

package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chat-sync/internal/model"
)

func TestBeginSend_RejectsEmpty(t *testing.T) {
	tl := newTestTimeline()

	_, err := tl.BeginSend(1, "   ", nil)
	assert.ErrorIs(t, err, model.ErrEmptyMessage)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.False(t, tl.SendPending(1))
}

func TestBeginSend_SingleFlight(t *testing.T) {
	tl := newTestTimeline()
	tl.SetDraft(1, "hello")

	intent, err := tl.BeginSend(1, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", intent.Content)

	_, err = tl.BeginSend(1, "hello", nil)
	assert.ErrorIs(t, err, model.ErrSendPending)

	// Other composers are independent.
	_, err = tl.BeginSend(2, "hi", nil)
	assert.NoError(t, err)
}

func TestCompleteSend_SuccessClearsSubmitted(t *testing.T) {
	tl := newTestTimeline()
	a1 := model.Attachment{ID: "a1"}
	a2 := model.Attachment{ID: "a2"}
	tl.SetDraft(1, " hello ")
	tl.AddAttachment(1, a1)

	intent, err := tl.BeginSend(1, " hello ", []model.Attachment{a1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, intent.AttachmentIDs())

	// Uploaded while the send was pending.
	tl.AddAttachment(1, a2)

	tl.CompleteSend(1, nil)
	c := tl.Composer(1)
	assert.Empty(t, c.Draft)
	assert.Equal(t, []model.Attachment{a2}, c.Attachments)
	assert.False(t, c.Pending)
	assert.NoError(t, c.Err)
}

func TestCompleteSend_KeepsTextTypedWhilePending(t *testing.T) {
	tl := newTestTimeline()
	tl.SetDraft(1, "first")
	_, err := tl.BeginSend(1, "first", nil)
	require.NoError(t, err)

	tl.SetDraft(1, "first and more")
	tl.CompleteSend(1, nil)
	assert.Equal(t, "first and more", tl.Composer(1).Draft)
}

func TestCompleteSend_FailureKeepsEverything(t *testing.T) {
	tl := newTestTimeline()
	a1 := model.Attachment{ID: "a1"}
	tl.SetDraft(1, "hello")
	tl.AddAttachment(1, a1)

	_, err := tl.BeginSend(1, "hello", []model.Attachment{a1})
	require.NoError(t, err)

	tl.CompleteSend(1, model.ErrTransient)
	c := tl.Composer(1)
	assert.Equal(t, "hello", c.Draft)
	assert.Equal(t, []model.Attachment{a1}, c.Attachments)
	assert.False(t, c.Pending)
	assert.ErrorIs(t, c.Err, model.ErrTransient)

	// Retry is allowed once settled.
	_, err = tl.BeginSend(1, "hello", []model.Attachment{a1})
	assert.NoError(t, err)
}

func TestCompleteSend_WithoutPendingIsNoop(t *testing.T) {
	tl := newTestTimeline()
	tl.SetDraft(1, "keep")
	tl.CompleteSend(1, nil)
	assert.Equal(t, "keep", tl.Composer(1).Draft)
}

func TestRemoveAttachment(t *testing.T) {
	tl := newTestTimeline()
	tl.AddAttachment(1, model.Attachment{ID: "a1"})
	tl.AddAttachment(1, model.Attachment{ID: "a2"})
	tl.RemoveAttachment(1, "a1")
	assert.Equal(t, []model.Attachment{{ID: "a2"}}, tl.Composer(1).Attachments)
}
