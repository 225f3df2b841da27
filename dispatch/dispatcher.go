package dispatch

import (
	"context"
	"fmt"
	"log/slog"
)

const defaultMailboxSize = 256

type envelope struct {
	event Event
	done  chan error
}

// Dispatcher serializes every inbound event, including fired scheduler
// callbacks, through one queue consumed by a single goroutine. No task state
// is ever mutated from two call paths concurrently.
type Dispatcher struct {
	collector *Collector
	lifecycle *Lifecycle
	presenter Presenter
	mailbox   chan envelope
	logger    *slog.Logger
}

type DispatcherOptions struct {
	Collector   *Collector
	Lifecycle   *Lifecycle
	Presenter   Presenter
	MailboxSize int
	Logger      *slog.Logger
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.MailboxSize
	if size <= 0 {
		size = defaultMailboxSize
	}
	return &Dispatcher{
		collector: opts.Collector,
		lifecycle: opts.Lifecycle,
		presenter: opts.Presenter,
		mailbox:   make(chan envelope, size),
		logger:    logger,
	}
}

// Run consumes the mailbox until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-d.mailbox:
			err := d.handle(env.event)
			if env.done != nil {
				env.done <- err
			} else if err != nil {
				d.logger.Warn("event_error", "event", env.event.eventName(), "error", err.Error())
			}
		}
	}
}

// Do submits an event and waits for the handler's result, so transports can
// acknowledge domain errors ("already resolved!") to the user. Ordering is
// still strict: the event goes through the same queue as everything else.
func (d *Dispatcher) Do(ctx context.Context, event Event) error {
	done := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.mailbox <- envelope{event: event, done: done}:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Enqueue submits an event without waiting; scheduler fire callbacks use this
// so timer goroutines never touch task state themselves.
func (d *Dispatcher) Enqueue(event Event) {
	select {
	case d.mailbox <- envelope{event: event}:
	default:
		d.logger.Error("mailbox_full", "event", event.eventName())
	}
}

func (d *Dispatcher) handle(event Event) error {
	switch ev := event.(type) {
	case StartDraft:
		field := d.collector.Begin(ev.SenderID)
		if err := d.presenter.PromptField(ev.SenderID, field); err != nil {
			d.logger.Error("transport_error", "op", "prompt_field", "sender_id", ev.SenderID, "error", err.Error())
		}
		return nil

	case SubmitField:
		result := d.collector.SubmitField(ev.SenderID, ev.Input)
		switch result.Outcome {
		case OutcomeNextPrompt:
			if err := d.presenter.PromptField(ev.SenderID, result.Next); err != nil {
				d.logger.Error("transport_error", "op", "prompt_field", "sender_id", ev.SenderID, "error", err.Error())
			}
			return nil
		case OutcomeComplete:
			_, err := d.lifecycle.FinalizeDraft(ev.SenderID, ev.SenderName)
			return err
		default:
			return nil
		}

	case SubmitResponse:
		_, err := d.lifecycle.Respond(ev.TaskID, ev.Actor, ev.Kind)
		return err

	case ThreadAction:
		_, err := d.lifecycle.Apply(ev.TaskID, ev.Actor, ev.Action)
		return err

	case EscalationFired:
		d.lifecycle.HandleEscalation(ev.Escalation)
		return nil

	default:
		return fmt.Errorf("dispatch: unhandled event %T", event)
	}
}
