package conversations

import (
	"time"

	"cchat/internal/models"
	"cchat/internal/notice"
)

// Presenter renders list rows.
type Presenter struct {
	Catalog  *notice.Catalog
	Location *time.Location
	Now      func() time.Time
}

// NewPresenter creates a presenter for lang in the local time zone.
func NewPresenter(lang string) *Presenter {
	return &Presenter{Catalog: notice.New(lang), Location: time.Local, Now: time.Now}
}

// DisplayName is the group name, or the other participant's name for
// direct conversations.
func (p *Presenter) DisplayName(c models.Conversation, meID string) string {
	if c.Type == models.ConversationGroup {
		return c.Name
	}
	if other, ok := c.Other(meID); ok && other.Name != "" {
		return other.Name
	}
	return p.Catalog.Text(notice.UnknownUser, nil)
}

// Avatar is the group avatar, or the other participant's avatar.
func (p *Presenter) Avatar(c models.Conversation, meID string) string {
	var a *string
	if c.Type == models.ConversationGroup {
		a = c.Avatar
	} else if other, ok := c.Other(meID); ok {
		a = other.Avatar
	}
	if a == nil {
		return ""
	}
	return *a
}

// Preview is the last message line shown under the name.
func (p *Presenter) Preview(c models.Conversation) string {
	if c.LastMessage == nil {
		return p.Catalog.Text(notice.SayHi, nil)
	}
	if c.LastMessage.HasAttachment() {
		return p.Catalog.Text(notice.Image, nil)
	}
	return c.LastMessage.Content
}

// LastActivity formats the last message time: a clock time today, a short
// date this year, a full date otherwise. Empty without a last message.
func (p *Presenter) LastActivity(c models.Conversation) string {
	if c.LastMessage == nil || c.LastMessage.CreatedAt.IsZero() {
		return ""
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	t := c.LastMessage.CreatedAt.In(loc)
	today := now().In(loc)

	switch {
	case t.Year() == today.Year() && t.YearDay() == today.YearDay():
		return t.Format("3:04 PM")
	case t.Year() == today.Year():
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2, 2006")
	}
}
