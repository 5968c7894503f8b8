package reconciler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"cchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	me    = models.UserRef{ID: "u1", Name: "Me"}
	other = models.UserRef{ID: "u2", Name: "Jane"}
	base  = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

func newTestReconciler() *Reconciler {
	n := 0
	return New("c1", me,
		WithClock(func() time.Time { return base.Add(time.Hour) }),
		WithTempIDs(func() string {
			n++
			return fmt.Sprintf("tmp-%d", n)
		}),
	)
}

func msg(id string, sender models.UserRef, minute int) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: "c1",
		Content:        "content " + id,
		Sender:         sender,
		CreatedAt:      base.Add(time.Duration(minute) * time.Minute),
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestLoadInitialSortsNewestFirstAndDedupes(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", me, 1), msg("c", other, 3), msg("b", other, 2), msg("a", me, 1)})

	snap := r.Snapshot()
	assert.Equal(t, []string{"c", "b", "a"}, ids(snap))
	assert.True(t, snap[2].IsMe)
	assert.False(t, snap[0].IsMe)
	for _, m := range snap {
		assert.False(t, m.IsLocal)
	}
}

func TestLoadInitialKeepsPendingEntries(t *testing.T) {
	r := newTestReconciler()
	tmp := r.BeginLocalSend(models.Draft{Content: "hello"})
	r.LoadInitial([]models.Message{msg("a", other, 1)})

	assert.Equal(t, []string{tmp, "a"}, ids(r.Snapshot()))
}

func TestApplyRemoteCreateIsIdempotent(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", other, 1)})

	assert.True(t, r.ApplyRemoteCreate(msg("b", other, 2)))
	assert.False(t, r.ApplyRemoteCreate(msg("b", other, 2)))
	assert.False(t, r.ApplyRemoteCreate(models.Message{}))

	assert.Equal(t, []string{"b", "a"}, ids(r.Snapshot()))
}

func TestApplyRemoteDeleteAndEdit(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", other, 1), msg("b", other, 2)})

	assert.True(t, r.ApplyRemoteEdit("a", "edited"))
	assert.False(t, r.ApplyRemoteEdit("missing", "x"))
	got, ok := r.Get(models.Confirmed("a"))
	require.True(t, ok)
	assert.Equal(t, "edited", got.Content)
	assert.Equal(t, []string{"b", "a"}, ids(r.Snapshot()), "edit keeps position")

	assert.True(t, r.ApplyRemoteDelete("b"))
	assert.False(t, r.ApplyRemoteDelete("b"))
	assert.Equal(t, []string{"a"}, ids(r.Snapshot()))
}

func TestLocalSendReplacedInPlace(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", other, 1)})

	tmp := r.BeginLocalSend(models.Draft{Content: "hi", Attachment: "/tmp/p.png"})
	pending, ok := r.Get(models.Pending(tmp))
	require.True(t, ok)
	assert.True(t, pending.IsLocal)
	assert.True(t, pending.IsMe)
	require.NotNil(t, pending.Attachment)
	assert.Equal(t, "/tmp/p.png", *pending.Attachment)

	// A newer message lands above the pending one before confirmation.
	r.ApplyRemoteCreate(msg("b", other, 90))

	out := r.ResolveLocalSend(tmp, msg("m1", me, 4))
	assert.Equal(t, Replaced, out)
	snap := r.Snapshot()
	assert.Equal(t, []string{"b", "m1", "a"}, ids(snap))
	assert.False(t, snap[1].IsLocal)
	assert.True(t, snap[1].IsMe)
}

func echo(id, content string) models.Message {
	m := msg(id, me, 4)
	m.Content = content
	return m
}

func TestEchoReplacesPendingEntryImmediately(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", other, 1)})
	tmp := r.BeginLocalSend(models.Draft{Content: " hi "})

	assert.True(t, r.ApplyRemoteCreate(echo("m1", "hi")))
	snap := r.Snapshot()
	assert.Equal(t, []string{"m1", "a"}, ids(snap))
	assert.False(t, snap[0].IsLocal)
	assert.Equal(t, 0, r.Pending())

	<-r.Changes()
	out := r.ResolveLocalSend(tmp, echo("m1", "hi"))
	assert.Equal(t, Superseded, out)
	assert.Equal(t, []string{"m1", "a"}, ids(r.Snapshot()))
	select {
	case <-r.Changes():
		t.Fatal("late resolution must not change the list")
	default:
	}

	// A second resolution of the same temp id is unknown.
	assert.Equal(t, Unknown, r.ResolveLocalSend(tmp, echo("m1", "hi")))
}

func TestEchoMatchesOldestPendingSend(t *testing.T) {
	r := newTestReconciler()
	first := r.BeginLocalSend(models.Draft{Content: "same"})
	second := r.BeginLocalSend(models.Draft{Content: "same"})
	r.BeginLocalSend(models.Draft{Content: "same", Attachment: "/tmp/p.png"})

	require.True(t, r.ApplyRemoteCreate(echo("m1", "same")))
	assert.Equal(t, []string{"tmp-3", "tmp-2", "m1"}, ids(r.Snapshot()))

	assert.Equal(t, Superseded, r.ResolveLocalSend(first, echo("m1", "same")))
	assert.Equal(t, Replaced, r.ResolveLocalSend(second, echo("m2", "same")))
	assert.Equal(t, []string{"tmp-3", "m2", "m1"}, ids(r.Snapshot()))
}

func TestEchoFromAnotherSenderDoesNotMatch(t *testing.T) {
	r := newTestReconciler()
	tmp := r.BeginLocalSend(models.Draft{Content: "hi"})

	m := msg("m9", other, 4)
	m.Content = "hi"
	require.True(t, r.ApplyRemoteCreate(m))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 1, r.Pending())

	assert.Equal(t, Replaced, r.ResolveLocalSend(tmp, echo("m1", "hi")))
	assert.Equal(t, 0, r.Pending())
}

func TestResolveDropsPendingWhenIDAlreadyListed(t *testing.T) {
	r := newTestReconciler()
	tmp := r.BeginLocalSend(models.Draft{Content: "hi"})

	// The echo carries text the server rewrote, so it cannot be matched.
	require.True(t, r.ApplyRemoteCreate(echo("m1", "hi!")))
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, Superseded, r.ResolveLocalSend(tmp, echo("m1", "hi!")))
	assert.Equal(t, []string{"m1"}, ids(r.Snapshot()))
}

func TestRemoteCreateOrderedByTimestamp(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", other, 1), msg("c", other, 3)})

	require.True(t, r.ApplyRemoteCreate(msg("b", other, 2)))
	assert.Equal(t, []string{"c", "b", "a"}, ids(r.Snapshot()))

	require.True(t, r.ApplyRemoteCreate(msg("old", other, 0)))
	require.True(t, r.ApplyRemoteCreate(msg("d", other, 4)))
	assert.Equal(t, []string{"d", "c", "b", "a", "old"}, ids(r.Snapshot()))

	require.True(t, r.ApplyRemoteCreate(models.Message{ID: "undated", Sender: other}))
	assert.Equal(t, "undated", r.Snapshot()[0].ID)
}

func TestEchoAfterResolveIsIgnored(t *testing.T) {
	r := newTestReconciler()
	tmp := r.BeginLocalSend(models.Draft{Content: "hi"})
	require.Equal(t, Replaced, r.ResolveLocalSend(tmp, msg("m1", me, 4)))

	assert.False(t, r.ApplyRemoteCreate(msg("m1", me, 4)))
	assert.Equal(t, []string{"m1"}, ids(r.Snapshot()))
}

func TestResolveUnknownTempIDIsNoop(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", other, 1)})

	assert.Equal(t, Unknown, r.ResolveLocalSend("nope", msg("m1", me, 4)))
	assert.Equal(t, []string{"a"}, ids(r.Snapshot()))
}

func TestFailedSendNeverResurrects(t *testing.T) {
	r := newTestReconciler()
	tmp := r.BeginLocalSend(models.Draft{Content: "hi"})

	assert.True(t, r.FailLocalSend(tmp))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, Unknown, r.ResolveLocalSend(tmp, msg("m1", me, 4)))
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.FailLocalSend(tmp))
}

func TestEditRevertOnlyWhenUnchanged(t *testing.T) {
	r := newTestReconciler()
	r.LoadInitial([]models.Message{msg("a", me, 1)})

	prev, ok := r.EditContent("a", "optimistic")
	require.True(t, ok)
	assert.Equal(t, "content a", prev)

	assert.True(t, r.RevertEdit("a", "optimistic", prev))
	got, _ := r.Get(models.Confirmed("a"))
	assert.Equal(t, "content a", got.Content)

	_, _ = r.EditContent("a", "optimistic")
	r.ApplyRemoteEdit("a", "someone else")
	assert.False(t, r.RevertEdit("a", "optimistic", prev))
	got, _ = r.Get(models.Confirmed("a"))
	assert.Equal(t, "someone else", got.Content)
}

func TestChangesCoalesce(t *testing.T) {
	r := newTestReconciler()
	r.ApplyRemoteCreate(msg("a", other, 1))
	r.ApplyRemoteCreate(msg("b", other, 2))

	select {
	case <-r.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-r.Changes():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestConcurrentMutationsStayConsistent(t *testing.T) {
	r := New("c1", me)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.ApplyRemoteCreate(msg(fmt.Sprintf("r%d", i), other, i))
		}(i)
		go func(i int) {
			defer wg.Done()
			tmp := r.BeginLocalSend(models.Draft{Content: "x"})
			r.ResolveLocalSend(tmp, msg(fmt.Sprintf("l%d", i), me, i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, r.Len())
	assert.Equal(t, 0, r.Pending())
}
