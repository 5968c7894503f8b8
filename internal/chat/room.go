// Package chat drives the conversation screen: one active conversation at
// a time, its realtime channel, its message list and the user's actions.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cchat/internal/apperr"
	"cchat/internal/logger"
	"cchat/internal/models"
	"cchat/internal/notice"
	"cchat/internal/pipeline"
	"cchat/internal/realtime"
	"cchat/internal/reconciler"
	"cchat/internal/upload"
)

// ErrNoConversation is returned by actions when no conversation is active.
var ErrNoConversation = errors.New("no active conversation")

// Backend is the part of the REST client the room uses.
type Backend interface {
	pipeline.Messenger
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Channel is an open realtime session.
type Channel interface {
	Events() <-chan realtime.Event
	Close() error
}

// Opener opens the realtime channel for a conversation.
type Opener interface {
	Open(ctx context.Context, conversationID, token string) (Channel, error)
}

// Auth is the signed-in user's context.
type Auth interface {
	Token() string
	Ref() models.UserRef
	SetActive(conversationID string)
	Logout() error
}

type managerOpener struct{ m *realtime.Manager }

func (o managerOpener) Open(ctx context.Context, conversationID, token string) (Channel, error) {
	s, err := o.m.Open(ctx, conversationID, token)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FromManager adapts a realtime manager to an Opener.
func FromManager(m *realtime.Manager) Opener { return managerOpener{m} }

// Room holds the active conversation.
type Room struct {
	api      Backend
	opener   Opener
	auth     Auth
	uploader upload.Uploader
	catalog  *notice.Catalog
	logger   *slog.Logger

	activateMu sync.Mutex
	mu         sync.RWMutex
	active     *activation

	changes chan struct{}
	notices chan notice.Notice
}

// activation is everything bound to one visit of a conversation. Once
// replaced, its results only reach its own reconciler.
type activation struct {
	id     string
	rec    *reconciler.Reconciler
	pipe   *pipeline.Pipeline
	ch     Channel
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRoom creates a room. uploader and catalog may be nil.
func NewRoom(api Backend, opener Opener, auth Auth, uploader upload.Uploader, catalog *notice.Catalog, l *slog.Logger) *Room {
	if catalog == nil {
		catalog = notice.New("en")
	}
	return &Room{
		api:      api,
		opener:   opener,
		auth:     auth,
		uploader: uploader,
		catalog:  catalog,
		logger:   logger.Or(l).With("component", "room"),
		changes:  make(chan struct{}, 1),
		notices:  make(chan notice.Notice, 16),
	}
}

// Changes signals that Messages may have changed. Signals coalesce.
func (r *Room) Changes() <-chan struct{} { return r.changes }

// Notices delivers user-facing messages.
func (r *Room) Notices() <-chan notice.Notice { return r.notices }

// Active returns the active conversation id, or "".
func (r *Room) Active() string {
	if a := r.current(); a != nil {
		return a.id
	}
	return ""
}

// Activate switches to conversationID. The previous conversation's channel
// is closed before the new one is opened. A failed history load still
// activates the room; a rejected credential does not.
func (r *Room) Activate(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return apperr.Invalid("conversationId", "Conversation is required")
	}
	r.activateMu.Lock()
	defer r.activateMu.Unlock()

	r.deactivate()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &activation{
		id:     conversationID,
		rec:    reconciler.New(conversationID, r.auth.Ref()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.pipe = pipeline.New(a.rec, r.api, r.uploader, r.auth.Ref().ID, r.logger)

	// The caller's ctx bounds the dial only.
	stopDial := context.AfterFunc(ctx, cancel)
	ch, err := r.opener.Open(loopCtx, conversationID, r.auth.Token())
	stopDial()
	switch {
	case err == nil:
		a.ch = ch
	case errors.Is(err, apperr.AuthExpired):
		cancel()
		r.expire(err)
		return err
	case ctx.Err() != nil:
		cancel()
		return ctx.Err()
	default:
		r.logger.Warn("realtime unavailable", "conversation", conversationID, "error", err)
	}

	if err := a.load(ctx, r.api); err != nil {
		r.logger.Warn("load messages", "conversation", conversationID, "error", err)
		if errors.Is(err, apperr.AuthExpired) {
			r.expire(err)
		} else {
			r.notify(r.catalog.ForError(err, notice.LoadFailed))
		}
	}

	r.mu.Lock()
	r.active = a
	r.mu.Unlock()
	r.auth.SetActive(conversationID)

	go r.loop(loopCtx, a)
	r.signal()
	r.logger.Debug("conversation activated", "conversation", conversationID)
	return nil
}

func (a *activation) load(ctx context.Context, api Backend) error {
	msgs, err := api.Messages(ctx, a.id)
	if err != nil {
		return err
	}
	a.rec.LoadInitial(msgs)
	return nil
}

// deactivate closes the current activation and waits for its loop.
func (r *Room) deactivate() {
	r.mu.Lock()
	a := r.active
	r.active = nil
	r.mu.Unlock()
	if a == nil {
		return
	}
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			r.logger.Debug("close channel", "conversation", a.id, "error", err)
		}
	}
	a.cancel()
	<-a.done
}

// Close leaves the active conversation.
func (r *Room) Close() {
	r.activateMu.Lock()
	defer r.activateMu.Unlock()
	r.deactivate()
	r.auth.SetActive("")
}

func (r *Room) current() *activation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Room) isCurrent(a *activation) bool { return r.current() == a }

// Messages returns the active conversation's messages in display order.
func (r *Room) Messages() []models.Message {
	a := r.current()
	if a == nil {
		return nil
	}
	return a.rec.Snapshot()
}

// Refresh re-fetches the history of the active conversation.
func (r *Room) Refresh(ctx context.Context) error {
	a := r.current()
	if a == nil {
		return ErrNoConversation
	}
	if err := a.load(ctx, r.api); err != nil {
		r.report(a, err, notice.LoadFailed)
		return err
	}
	return nil
}

// Send commits a draft in the active conversation. A failed result
// carries the draft back so it can be restored into the input.
func (r *Room) Send(ctx context.Context, draft models.Draft) (pipeline.Result, error) {
	a := r.current()
	if a == nil {
		return pipeline.Result{State: pipeline.StateComposing, Draft: draft}, ErrNoConversation
	}
	res, err := a.pipe.Send(ctx, draft)
	if err != nil {
		r.report(a, err, notice.SendFailed)
	}
	return res, err
}

// Edit changes one of the user's messages.
func (r *Room) Edit(ctx context.Context, id, content string) (models.Message, error) {
	a := r.current()
	if a == nil {
		return models.Message{}, ErrNoConversation
	}
	m, err := a.pipe.Edit(ctx, id, content)
	if err != nil {
		r.report(a, err, notice.EditFailed)
	}
	return m, err
}

// Delete removes one of the user's messages.
func (r *Room) Delete(ctx context.Context, id string) error {
	a := r.current()
	if a == nil {
		return ErrNoConversation
	}
	err := a.pipe.Delete(ctx, id)
	if err != nil {
		r.report(a, err, notice.DeleteFailed)
	}
	return err
}

// report turns an action failure into a notice unless the user has moved
// on to another conversation.
func (r *Room) report(a *activation, err error, fallback string) {
	if !r.isCurrent(a) {
		r.logger.Debug("dropping result of inactive conversation", "conversation", a.id, "error", err)
		return
	}
	if errors.Is(err, apperr.AuthExpired) {
		r.expire(err)
		return
	}
	r.notify(r.catalog.ForError(err, fallback))
}

func (r *Room) expire(err error) {
	r.logger.Info("credential rejected, signing out", "error", err)
	if lerr := r.auth.Logout(); lerr != nil {
		r.logger.Error("logout", "error", lerr)
	}
	r.notify(r.catalog.ForError(err, notice.AuthExpired))
}

func (r *Room) loop(ctx context.Context, a *activation) {
	defer close(a.done)

	var events <-chan realtime.Event
	if a.ch != nil {
		events = a.ch.Events()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.rec.Changes():
			if r.isCurrent(a) {
				r.signal()
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.apply(ctx, a, ev)
		}
	}
}

func (r *Room) apply(ctx context.Context, a *activation, ev realtime.Event) {
	switch ev.Kind {
	case realtime.EventMessageCreated:
		a.rec.ApplyRemoteCreate(ev.Message)
	case realtime.EventMessageEdited:
		a.rec.ApplyRemoteEdit(ev.Message.ID, ev.Message.Content)
	case realtime.EventMessageDeleted:
		a.rec.ApplyRemoteDelete(ev.MessageID)
	case realtime.EventReconnected:
		if err := a.load(ctx, r.api); err != nil {
			r.logger.Warn("refetch after reconnect", "conversation", a.id, "error", err)
			return
		}
		if r.isCurrent(a) {
			r.notify(r.catalog.Info(notice.Reconnected, nil))
		}
	case realtime.EventAuthExpired:
		if r.isCurrent(a) {
			r.expire(ev.Err)
		}
	case realtime.EventServerError:
		r.report(a, ev.Err, notice.ServerError)
	}
}

func (r *Room) signal() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

func (r *Room) notify(n notice.Notice) {
	select {
	case r.notices <- n:
	default:
		r.logger.Debug("notice dropped", "text", n.Text)
	}
}
