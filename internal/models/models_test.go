package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDraftCommittable(t *testing.T) {
	assert.False(t, Draft{}.Committable())
	assert.False(t, Draft{Content: "   \n\t"}.Committable())
	assert.True(t, Draft{Content: " hi "}.Committable())
	assert.True(t, Draft{Attachment: "/tmp/cat.png"}.Committable())
}

func TestIdentityVariantsNeverCollide(t *testing.T) {
	assert.NotEqual(t, Pending("abc"), Confirmed("abc"))
	assert.Equal(t, Confirmed("abc"), Confirmed("abc"))
	assert.True(t, Pending("x").IsPending())
	assert.False(t, Confirmed("x").IsPending())
	assert.True(t, Identity{}.IsZero())
}

func TestConversationLastActivityFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Conversation{CreatedAt: created}
	assert.Equal(t, created, c.LastActivity())

	later := created.Add(time.Hour)
	c.LastMessage = &Message{CreatedAt: later}
	assert.Equal(t, later, c.LastActivity())
}

func TestMessageShortTime(t *testing.T) {
	m := Message{CreatedAt: time.Date(2024, 3, 5, 15, 4, 0, 0, time.UTC)}
	assert.Equal(t, "3:04 PM", m.ShortTime(time.UTC))
}

func TestConversationOther(t *testing.T) {
	c := Conversation{Participants: []UserRef{{ID: "me"}, {ID: "you", Name: "You"}}}
	other, ok := c.Other("me")
	assert.True(t, ok)
	assert.Equal(t, "You", other.Name)
	assert.True(t, c.HasParticipant("you"))
	assert.False(t, c.HasParticipant("them"))
}
