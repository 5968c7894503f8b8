// Package reconciler keeps the ordered message list of one conversation and
// merges the three sources of change into it: the initial fetch, realtime
// events, and the user's own optimistic sends.
//
// Every operation takes the same mutex, so each one is applied atomically
// and observers never see a half-applied state. Listeners are told about
// changes through a coalescing channel and re-read Snapshot.
package reconciler

import (
	"sort"
	"strings"
	"sync"
	"time"

	"cchat/internal/models"

	"github.com/google/uuid"
)

// Outcome of resolving a pending local send.
type Outcome int

const (
	// Unknown means the temp id was not (or no longer) pending; nothing changed.
	Unknown Outcome = iota
	// Replaced means the pending entry was swapped for the confirmed message in place.
	Replaced
	// Superseded means the realtime echo arrived first and already took the
	// pending entry's place.
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Replaced:
		return "replaced"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

type entry struct {
	id  models.Identity
	msg models.Message
}

// Reconciler holds the newest-first message sequence of one conversation.
type Reconciler struct {
	mu             sync.Mutex
	conversationID string
	me             models.UserRef
	entries        []entry
	failed         map[string]struct{}
	superseded     map[string]string // temp id -> confirmed id
	changes        chan struct{}

	now       func() time.Time
	newTempID func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the clock used to stamp pending entries.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithTempIDs overrides the temporary id generator.
func WithTempIDs(gen func() string) Option {
	return func(r *Reconciler) { r.newTempID = gen }
}

// New creates an empty reconciler for conversationID as seen by me.
func New(conversationID string, me models.UserRef, opts ...Option) *Reconciler {
	r := &Reconciler{
		conversationID: conversationID,
		me:             me,
		failed:         make(map[string]struct{}),
		superseded:     make(map[string]string),
		changes:        make(chan struct{}, 1),
		now:            time.Now,
		newTempID:      func() string { return "local-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConversationID returns the conversation this reconciler belongs to.
func (r *Reconciler) ConversationID() string { return r.conversationID }

// Changes delivers a signal after every mutation. Signals coalesce, so a
// receiver should read Snapshot rather than count them.
func (r *Reconciler) Changes() <-chan struct{} { return r.changes }

func (r *Reconciler) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

func (r *Reconciler) decorate(m models.Message, pending bool) models.Message {
	m.IsMe = m.Sender.ID != "" && m.Sender.ID == r.me.ID
	m.IsLocal = pending
	if m.ConversationID == "" {
		m.ConversationID = r.conversationID
	}
	return m
}

func (r *Reconciler) indexOf(id models.Identity) int {
	for i := range r.entries {
		if r.entries[i].id == id {
			return i
		}
	}
	return -1
}

// LoadInitial replaces the confirmed entries with a fetch result. The result
// is ordered newest first and de-duplicated by id. Pending local sends that
// are still in flight stay at the front.
func (r *Reconciler) LoadInitial(messages []models.Message) {
	fetched := make([]models.Message, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		fetched = append(fetched, m)
	}
	sort.SliceStable(fetched, func(i, j int) bool {
		return fetched[i].CreatedAt.After(fetched[j].CreatedAt)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]entry, 0, len(fetched)+len(r.entries))
	for _, e := range r.entries {
		if e.id.IsPending() {
			next = append(next, e)
		}
	}
	for _, m := range fetched {
		next = append(next, entry{id: models.Confirmed(m.ID), msg: r.decorate(m, false)})
	}
	r.entries = next
	r.notify()
}

// ApplyRemoteCreate merges a message broadcast by the server. The echo of
// one of the user's own pending sends takes that entry's place; any other
// message is inserted by CreatedAt, newest first. A message whose id is
// already present is ignored. Reports whether the list changed.
func (r *Reconciler) ApplyRemoteCreate(m models.Message) bool {
	if m.ID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := models.Confirmed(m.ID)
	if r.indexOf(id) >= 0 {
		return false
	}
	confirmed := entry{id: id, msg: r.decorate(m, false)}

	if i := r.echoOf(m); i >= 0 {
		r.superseded[r.entries[i].id.Value()] = m.ID
		r.entries[i] = confirmed
		r.notify()
		return true
	}

	pos := r.insertionPoint(m.CreatedAt)
	r.entries = append(r.entries, entry{})
	copy(r.entries[pos+1:], r.entries[pos:])
	r.entries[pos] = confirmed
	r.notify()
	return true
}

// echoOf returns the index of the oldest pending entry m confirms: sent by
// the user, same trimmed content, attachment on both or neither.
func (r *Reconciler) echoOf(m models.Message) int {
	if m.Sender.ID == "" || m.Sender.ID != r.me.ID {
		return -1
	}
	content := strings.TrimSpace(m.Content)
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.id.IsPending() {
			continue
		}
		if strings.TrimSpace(e.msg.Content) == content && e.msg.HasAttachment() == m.HasAttachment() {
			return i
		}
	}
	return -1
}

// insertionPoint is the first position whose entry is not newer than at.
// A message without a timestamp goes to the front.
func (r *Reconciler) insertionPoint(at time.Time) int {
	if at.IsZero() {
		return 0
	}
	for i, e := range r.entries {
		if !e.msg.CreatedAt.After(at) {
			return i
		}
	}
	return len(r.entries)
}

// ApplyRemoteDelete removes the message with id. Absent ids are ignored.
func (r *Reconciler) ApplyRemoteDelete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(models.Confirmed(id))
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.notify()
	return true
}

// ApplyRemoteEdit replaces the content of the message with id in place.
// Absent ids are ignored; the position never changes.
func (r *Reconciler) ApplyRemoteEdit(id, content string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(models.Confirmed(id))
	if i < 0 {
		return false
	}
	r.entries[i].msg.Content = content
	r.entries[i].msg.UpdatedAt = r.now()
	r.notify()
	return true
}

// BeginLocalSend inserts a pending entry for draft at the front and returns
// its temporary id.
func (r *Reconciler) BeginLocalSend(draft models.Draft) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tempID := r.newTempID()
	now := r.now()
	msg := models.Message{
		ID:             tempID,
		ConversationID: r.conversationID,
		Content:        draft.Content,
		Sender:         r.me,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if draft.Attachment != "" {
		local := draft.Attachment
		msg.Attachment = &local
	}
	r.entries = append([]entry{{id: models.Pending(tempID), msg: r.decorate(msg, true)}}, r.entries...)
	r.notify()
	return tempID
}

// ResolveLocalSend settles the pending entry tempID with the server's copy.
// When the realtime echo won the race the list is left as the echo made it,
// otherwise the pending entry is replaced in place. An unknown or already
// failed tempID leaves the list untouched.
func (r *Reconciler) ResolveLocalSend(tempID string, confirmed models.Message) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, failed := r.failed[tempID]; failed {
		return Unknown
	}
	if _, done := r.superseded[tempID]; done {
		delete(r.superseded, tempID)
		return Superseded
	}
	i := r.indexOf(models.Pending(tempID))
	if i < 0 {
		return Unknown
	}
	if confirmed.ID == "" || r.indexOf(models.Confirmed(confirmed.ID)) >= 0 {
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		r.notify()
		return Superseded
	}
	r.entries[i] = entry{id: models.Confirmed(confirmed.ID), msg: r.decorate(confirmed, false)}
	r.notify()
	return Replaced
}

// FailLocalSend removes the pending entry tempID. The id is remembered so a
// late resolution cannot bring the entry back.
func (r *Reconciler) FailLocalSend(tempID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed[tempID] = struct{}{}
	delete(r.superseded, tempID)
	i := r.indexOf(models.Pending(tempID))
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.notify()
	return true
}

// EditContent sets the content of a confirmed message and returns the
// content it replaced.
func (r *Reconciler) EditContent(id, content string) (previous string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(models.Confirmed(id))
	if i < 0 {
		return "", false
	}
	previous = r.entries[i].msg.Content
	r.entries[i].msg.Content = content
	r.notify()
	return previous, true
}

// RevertEdit restores previous only if the entry still holds applied, so a
// newer remote edit is never overwritten by a rollback.
func (r *Reconciler) RevertEdit(id, applied, previous string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(models.Confirmed(id))
	if i < 0 || r.entries[i].msg.Content != applied {
		return false
	}
	r.entries[i].msg.Content = previous
	r.notify()
	return true
}

// Get returns the entry with the given identity.
func (r *Reconciler) Get(id models.Identity) (models.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return models.Message{}, false
	}
	return r.entries[i].msg, true
}

// Snapshot returns a copy of the sequence, newest first.
func (r *Reconciler) Snapshot() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Message, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.msg
	}
	return out
}

// Len returns the number of entries.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Pending returns the number of unconfirmed local entries.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.id.IsPending() {
			n++
		}
	}
	return n
}
