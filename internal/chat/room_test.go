package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cchat/internal/apperr"
	"cchat/internal/logger"
	"cchat/internal/models"
	"cchat/internal/notice"
	"cchat/internal/pipeline"
	"cchat/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var me = models.UserRef{ID: "u1", Name: "Me"}

type fakeChannel struct {
	id     string
	events chan realtime.Event
	once   sync.Once
	closed chan struct{}
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id, events: make(chan realtime.Event, 8), closed: make(chan struct{})}
}

func (c *fakeChannel) Events() <-chan realtime.Event { return c.events }

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeOpener struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
	opened   []string
	err      error
	// closedBeforeOpen records, per open, whether every earlier channel was closed.
	closedBeforeOpen []bool
}

func (o *fakeOpener) Open(_ context.Context, id, token string) (Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	allClosed := true
	for _, c := range o.channels {
		if !c.isClosed() {
			allClosed = false
		}
	}
	o.closedBeforeOpen = append(o.closedBeforeOpen, allClosed)
	o.opened = append(o.opened, id)
	if o.err != nil {
		return nil, o.err
	}
	if o.channels == nil {
		o.channels = map[string]*fakeChannel{}
	}
	c := newFakeChannel(id)
	o.channels[id] = c
	return c, nil
}

func (o *fakeOpener) channel(id string) *fakeChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channels[id]
}

type fakeBackend struct {
	mu       sync.Mutex
	history  map[string][]models.Message
	fetchErr error
	fetches  int
	sendErr  error
	sendHook func()
	nextID   string
}

func (b *fakeBackend) Messages(_ context.Context, id string) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.history[id], nil
}

func (b *fakeBackend) SendMessage(_ context.Context, req models.SendMessageRequest) (models.Message, error) {
	if b.sendHook != nil {
		b.sendHook()
	}
	if b.sendErr != nil {
		return models.Message{}, b.sendErr
	}
	return models.Message{ID: b.nextID, ConversationID: req.ConversationID, Content: req.Content, Sender: me, CreatedAt: time.Now()}, nil
}

func (b *fakeBackend) EditMessage(_ context.Context, id string, req models.EditMessageRequest) (models.Message, error) {
	return models.Message{ID: id, Content: req.Content}, nil
}

func (b *fakeBackend) DeleteMessage(context.Context, string) error { return nil }

func (b *fakeBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

type fakeAuth struct {
	mu       sync.Mutex
	active   string
	loggedIn bool
}

func (a *fakeAuth) Token() string       { return "tok" }
func (a *fakeAuth) Ref() models.UserRef { return me }

func (a *fakeAuth) SetActive(id string) {
	a.mu.Lock()
	a.active = id
	a.mu.Unlock()
}

func (a *fakeAuth) Logout() error {
	a.mu.Lock()
	a.loggedIn = false
	a.mu.Unlock()
	return nil
}

func (a *fakeAuth) signedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

func setup(t *testing.T) (*Room, *fakeBackend, *fakeOpener, *fakeAuth) {
	t.Helper()
	b := &fakeBackend{history: map[string][]models.Message{}, nextID: "srv-1"}
	o := &fakeOpener{}
	a := &fakeAuth{loggedIn: true}
	r := NewRoom(b, o, a, nil, notice.New("en"), logger.Discard())
	t.Cleanup(r.Close)
	return r, b, o, a
}

func nextNotice(t *testing.T, r *Room) notice.Notice {
	t.Helper()
	select {
	case n := <-r.Notices():
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notice")
		return notice.Notice{}
	}
}

func TestActivateLoadsHistoryAndJoins(t *testing.T) {
	r, b, o, a := setup(t)
	b.history["c1"] = []models.Message{{ID: "m1", ConversationID: "c1", Content: "hi", Sender: models.UserRef{ID: "u2"}}}

	require.NoError(t, r.Activate(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, o.opened)
	assert.Equal(t, "c1", r.Active())
	assert.Equal(t, "c1", a.active)
	require.Len(t, r.Messages(), 1)
	assert.False(t, r.Messages()[0].IsMe)
}

func TestSwitchClosesPreviousChannelFirst(t *testing.T) {
	r, _, o, _ := setup(t)

	require.NoError(t, r.Activate(context.Background(), "c1"))
	require.NoError(t, r.Activate(context.Background(), "c2"))

	assert.Equal(t, []bool{true, true}, o.closedBeforeOpen)
	assert.True(t, o.channel("c1").isClosed())
	assert.False(t, o.channel("c2").isClosed())
	assert.Equal(t, "c2", r.Active())
}

func TestLoadFailureFailsOpen(t *testing.T) {
	r, b, _, _ := setup(t)
	b.fetchErr = apperr.Network(errors.New("offline"))

	require.NoError(t, r.Activate(context.Background(), "c1"))
	assert.Empty(t, r.Messages())
	n := nextNotice(t, r)
	assert.Equal(t, notice.Error, n.Level)
	assert.Equal(t, "Cannot connect to the server.", n.Text)
}

func TestRealtimeEventsApply(t *testing.T) {
	r, _, o, _ := setup(t)
	require.NoError(t, r.Activate(context.Background(), "c1"))
	ch := o.channel("c1")

	ch.events <- realtime.Event{Kind: realtime.EventMessageCreated, Message: models.Message{ID: "m1", ConversationID: "c1", Content: "hi"}}
	ch.events <- realtime.Event{Kind: realtime.EventMessageEdited, Message: models.Message{ID: "m1", Content: "hey"}}

	require.Eventually(t, func() bool {
		msgs := r.Messages()
		return len(msgs) == 1 && msgs[0].Content == "hey"
	}, 2*time.Second, 5*time.Millisecond)

	ch.events <- realtime.Event{Kind: realtime.EventMessageDeleted, MessageID: "m1"}
	require.Eventually(t, func() bool { return len(r.Messages()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestReconnectRefetches(t *testing.T) {
	r, b, o, _ := setup(t)
	require.NoError(t, r.Activate(context.Background(), "c1"))
	assert.Equal(t, 1, b.fetchCount())

	b.mu.Lock()
	b.history["c1"] = []models.Message{{ID: "missed", ConversationID: "c1"}}
	b.mu.Unlock()
	o.channel("c1").events <- realtime.Event{Kind: realtime.EventReconnected}

	n := nextNotice(t, r)
	assert.Equal(t, "Reconnected", n.Text)
	assert.Equal(t, 2, b.fetchCount())
	require.Len(t, r.Messages(), 1)
}

func TestAuthExpiredLogsOut(t *testing.T) {
	r, _, o, a := setup(t)
	require.NoError(t, r.Activate(context.Background(), "c1"))

	o.channel("c1").events <- realtime.Event{Kind: realtime.EventAuthExpired, Err: apperr.Expired(401, errors.New("bad handshake"))}
	n := nextNotice(t, r)
	assert.Equal(t, apperr.KindAuthExpired, n.Kind)
	assert.Equal(t, "Session expired, please log in again", n.Text)
	assert.False(t, a.signedIn())
}

func TestRejectedHandshakeDoesNotActivate(t *testing.T) {
	r, _, o, a := setup(t)
	o.err = apperr.Expired(401, errors.New("bad handshake"))

	err := r.Activate(context.Background(), "c1")
	assert.True(t, errors.Is(err, apperr.AuthExpired))
	assert.Empty(t, r.Active())
	assert.False(t, a.signedIn())
}

func TestUnreachableChannelStillActivates(t *testing.T) {
	r, _, o, _ := setup(t)
	o.err = apperr.Network(errors.New("refused"))

	require.NoError(t, r.Activate(context.Background(), "c1"))
	assert.Equal(t, "c1", r.Active())
}

func TestSendThroughRoom(t *testing.T) {
	r, _, _, _ := setup(t)
	require.NoError(t, r.Activate(context.Background(), "c1"))

	res, err := r.Send(context.Background(), models.Draft{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateConfirmed, res.State)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.True(t, msgs[0].IsMe)
}

func TestSendFailureNotifies(t *testing.T) {
	r, b, _, _ := setup(t)
	require.NoError(t, r.Activate(context.Background(), "c1"))
	b.sendErr = apperr.Rejected(500, "")

	res, err := r.Send(context.Background(), models.Draft{Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, "hello", res.Draft.Content)
	assert.Equal(t, "Failed to send message", nextNotice(t, r).Text)
}

func TestResultOfAbandonedConversationIsDiscarded(t *testing.T) {
	r, b, _, _ := setup(t)
	require.NoError(t, r.Activate(context.Background(), "c1"))

	b.sendErr = apperr.Rejected(500, "boom")
	b.sendHook = func() {
		require.NoError(t, r.Activate(context.Background(), "c2"))
	}

	_, err := r.Send(context.Background(), models.Draft{Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, "c2", r.Active())
	assert.Empty(t, r.Messages())
	select {
	case n := <-r.Notices():
		t.Fatalf("unexpected notice %q", n.Text)
	default:
	}
}

func TestActionsWithoutConversation(t *testing.T) {
	r, _, _, _ := setup(t)
	_, err := r.Send(context.Background(), models.Draft{Content: "x"})
	assert.ErrorIs(t, err, ErrNoConversation)
	assert.ErrorIs(t, r.Delete(context.Background(), "m1"), ErrNoConversation)
	assert.ErrorIs(t, r.Refresh(context.Background()), ErrNoConversation)
	assert.Nil(t, r.Messages())
}

func TestCloseLeaves(t *testing.T) {
	r, _, o, a := setup(t)
	require.NoError(t, r.Activate(context.Background(), "c1"))

	r.Close()
	assert.True(t, o.channel("c1").isClosed())
	assert.Empty(t, r.Active())
	assert.Empty(t, a.active)
}
