// ABOUTME: Composer state and the single-flight send lifecycle
// ABOUTME: Draft content is cleared only after a positive acknowledgement

package timeline

import (
	"slices"

	"github.com/2389/chat-sync/internal/model"
)

type composer struct {
	draft       string
	attachments []model.Attachment
	pending     bool
	err         error
	submitted   Intent
}

// Composer is a snapshot of one conversation's composer.
type Composer struct {
	Draft       string
	Attachments []model.Attachment
	Pending     bool
	// Err holds the last send failure; nil after a successful send.
	Err error
}

// Intent is a send that passed local validation and must go out on the push
// channel exactly once.
type Intent struct {
	ConversationID int64
	Content        string
	Attachments    []model.Attachment
}

// AttachmentIDs lists the ids of the intent's attachments.
func (i Intent) AttachmentIDs() []string {
	ids := make([]string, len(i.Attachments))
	for n, a := range i.Attachments {
		ids[n] = a.ID
	}
	return ids
}

func (t *Timeline) composer(conversationID int64) *composer {
	c, ok := t.composers[conversationID]
	if !ok {
		c = &composer{}
		t.composers[conversationID] = c
	}
	return c
}

// Composer returns a snapshot of conversationID's composer.
func (t *Timeline) Composer(conversationID int64) Composer {
	c, ok := t.composers[conversationID]
	if !ok {
		return Composer{}
	}
	return Composer{
		Draft:       c.draft,
		Attachments: slices.Clone(c.attachments),
		Pending:     c.pending,
		Err:         c.err,
	}
}

// SetDraft replaces the draft text.
func (t *Timeline) SetDraft(conversationID int64, draft string) {
	t.composer(conversationID).draft = draft
}

// AddAttachment appends an uploaded attachment to the composer.
func (t *Timeline) AddAttachment(conversationID int64, a model.Attachment) {
	c := t.composer(conversationID)
	c.attachments = append(c.attachments, a)
}

// RemoveAttachment drops an attachment from the composer by id.
func (t *Timeline) RemoveAttachment(conversationID int64, attachmentID string) {
	c := t.composer(conversationID)
	c.attachments = slices.DeleteFunc(c.attachments, func(a model.Attachment) bool { return a.ID == attachmentID })
}

// BeginSend validates a send and marks the composer pending. It fails with
// model.ErrSendPending while another send is unacknowledged and with
// model.ErrEmptyMessage when there is nothing to send. Neither failure
// touches the composer.
func (t *Timeline) BeginSend(conversationID int64, content string, attachments []model.Attachment) (Intent, error) {
	c := t.composer(conversationID)
	if c.pending {
		return Intent{}, model.ErrSendPending
	}
	content = model.TrimContent(content)
	if content == "" && len(attachments) == 0 {
		return Intent{}, model.ErrEmptyMessage
	}
	intent := Intent{
		ConversationID: conversationID,
		Content:        content,
		Attachments:    slices.Clone(attachments),
	}
	c.pending = true
	c.err = nil
	c.submitted = intent
	return intent, nil
}

// CompleteSend settles the pending send. On success the submitted content
// and attachments leave the composer; text typed after submission stays. On
// failure the composer is kept intact and err is recorded.
func (t *Timeline) CompleteSend(conversationID int64, err error) {
	c, ok := t.composers[conversationID]
	if !ok || !c.pending {
		return
	}
	c.pending = false
	submitted := c.submitted
	c.submitted = Intent{}
	if err != nil {
		c.err = err
		return
	}
	c.err = nil
	if model.TrimContent(c.draft) == submitted.Content {
		c.draft = ""
	}
	c.attachments = slices.DeleteFunc(c.attachments, func(a model.Attachment) bool {
		return slices.ContainsFunc(submitted.Attachments, func(s model.Attachment) bool { return s.ID == a.ID })
	})
}

// SendPending reports whether conversationID has an unacknowledged send.
func (t *Timeline) SendPending(conversationID int64) bool {
	c, ok := t.composers[conversationID]
	return ok && c.pending
}
