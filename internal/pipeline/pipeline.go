// Package pipeline carries user actions on messages from the input box to
// the server, keeping the reconciler in step.
//
// A send is a small state machine:
//
//	Composing -> Optimistic -> Confirmed | SupersededByRemote | Failed
//
// Edits and deletes skip the optimistic insert.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cchat/internal/apperr"
	"cchat/internal/logger"
	"cchat/internal/models"
	"cchat/internal/reconciler"
	"cchat/internal/upload"
	"cchat/internal/validation"

	"github.com/qmuntal/stateless"
)

// State of one send attempt.
type State string

const (
	StateComposing  State = "Composing"
	StateOptimistic State = "Optimistic"
	StateConfirmed  State = "Confirmed"
	StateFailed     State = "Failed"
	StateSuperseded State = "SupersededByRemote"
)

// Trigger moves a send attempt between states.
type Trigger string

const (
	TriggerCommit    Trigger = "Commit"
	TriggerConfirm   Trigger = "Confirm"
	TriggerSupersede Trigger = "Supersede"
	TriggerFail      Trigger = "Fail"
)

// ErrNotFound is returned when editing or deleting a message that is not
// in the conversation.
var ErrNotFound = errors.New("message not found")

// Messenger is the part of the REST client the pipeline uses.
type Messenger interface {
	SendMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error)
	EditMessage(ctx context.Context, id string, req models.EditMessageRequest) (models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// Result describes a finished send. Draft is the original composition so a
// failed send can be restored into the input.
type Result struct {
	State   State
	TempID  string
	Message models.Message
	Draft   models.Draft
}

// Pipeline sends, edits and deletes messages of one conversation.
type Pipeline struct {
	rec      *reconciler.Reconciler
	api      Messenger
	uploader upload.Uploader
	senderID string
	logger   *slog.Logger
}

// New creates a pipeline. uploader may be nil when attachments are not
// supported.
func New(rec *reconciler.Reconciler, api Messenger, uploader upload.Uploader, senderID string, l *slog.Logger) *Pipeline {
	return &Pipeline{
		rec:      rec,
		api:      api,
		uploader: uploader,
		senderID: senderID,
		logger:   logger.Or(l).With("component", "pipeline", "conversation", rec.ConversationID()),
	}
}

type attempt struct {
	draft  models.Draft
	tempID string
}

func (p *Pipeline) machine(a *attempt) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateComposing)

	sm.Configure(StateComposing).
		Permit(TriggerCommit, StateOptimistic)

	sm.Configure(StateOptimistic).
		OnEntry(func(_ context.Context, _ ...any) error {
			a.tempID = p.rec.BeginLocalSend(a.draft)
			return nil
		}).
		Permit(TriggerConfirm, StateConfirmed).
		Permit(TriggerSupersede, StateSuperseded).
		Permit(TriggerFail, StateFailed)

	sm.Configure(StateFailed).
		OnEntry(func(_ context.Context, _ ...any) error {
			p.rec.FailLocalSend(a.tempID)
			return nil
		})

	sm.Configure(StateConfirmed)
	sm.Configure(StateSuperseded)
	return sm
}

// Send commits draft. Empty drafts fail validation and are never sent.
// The returned error is the cause of a Failed result.
func (p *Pipeline) Send(ctx context.Context, draft models.Draft) (Result, error) {
	res := Result{State: StateComposing, Draft: draft}
	if err := validation.Draft(draft); err != nil {
		return res, err
	}

	a := &attempt{draft: draft}
	sm := p.machine(a)
	if err := sm.FireCtx(ctx, TriggerCommit); err != nil {
		return res, fmt.Errorf("commit draft: %w", err)
	}
	res.TempID = a.tempID

	fail := func(err error) (Result, error) {
		if fireErr := sm.FireCtx(ctx, TriggerFail); fireErr != nil {
			p.logger.Error("fail transition", "error", fireErr)
		}
		res.State = sm.MustState().(State)
		p.logger.Warn("send failed", "temp_id", a.tempID, "kind", apperr.KindOf(err), "error", err)
		return res, err
	}

	// Upload attachment
	var attachment *string
	if draft.Attachment != "" {
		if p.uploader == nil {
			return fail(upload.ErrDisabled)
		}
		url, err := p.uploader.Upload(ctx, draft.Attachment)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindUploadFailed {
				err = apperr.Upload(err)
			}
			return fail(err)
		}
		attachment = &url
	}

	msg, err := p.api.SendMessage(ctx, models.SendMessageRequest{
		ConversationID: p.rec.ConversationID(),
		Content:        strings.TrimSpace(draft.Content),
		Attachment:     attachment,
		SenderID:       p.senderID,
	})
	if err != nil {
		return fail(err)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = p.rec.ConversationID()
	}

	trigger := TriggerConfirm
	switch outcome := p.rec.ResolveLocalSend(a.tempID, msg); outcome {
	case reconciler.Superseded:
		trigger = TriggerSupersede
	case reconciler.Unknown:
		p.logger.Debug("pending entry already gone", "temp_id", a.tempID, "id", msg.ID)
	}
	if err := sm.FireCtx(ctx, trigger); err != nil {
		return res, fmt.Errorf("settle send: %w", err)
	}
	res.State = sm.MustState().(State)
	res.Message = msg
	return res, nil
}

// Edit changes the content of one of the user's messages. The new text is
// shown at once and rolled back if the server refuses, unless someone else
// changed the message in the meantime.
func (p *Pipeline) Edit(ctx context.Context, id, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, apperr.Invalid("content", "Message cannot be empty")
	}
	if err := p.ownMessage(id); err != nil {
		return models.Message{}, err
	}

	previous, ok := p.rec.EditContent(id, content)
	if !ok {
		return models.Message{}, ErrNotFound
	}

	msg, err := p.api.EditMessage(ctx, id, models.EditMessageRequest{Content: content, UserID: p.senderID})
	if err != nil {
		if p.rec.RevertEdit(id, content, previous) {
			p.logger.Info("edit rolled back", "id", id)
		}
		return models.Message{}, err
	}
	if msg.ID == id && msg.Content != "" && msg.Content != content {
		p.rec.ApplyRemoteEdit(id, msg.Content)
	}
	current, _ := p.rec.Get(models.Confirmed(id))
	return current, nil
}

// Delete removes one of the user's messages. The entry is dropped as soon
// as the server confirms; the realtime echo is then a no-op.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	if err := p.ownMessage(id); err != nil {
		return err
	}
	if err := p.api.DeleteMessage(ctx, id); err != nil {
		return err
	}
	p.rec.ApplyRemoteDelete(id)
	return nil
}

func (p *Pipeline) ownMessage(id string) error {
	m, ok := p.rec.Get(models.Confirmed(id))
	if !ok {
		return ErrNotFound
	}
	if !m.IsMe {
		return apperr.Invalid("id", "You can only change your own messages")
	}
	return nil
}
