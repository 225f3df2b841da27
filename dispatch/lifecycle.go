package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultReminderDelay   = 30 * time.Minute
	DefaultEscalationDelay = 60 * time.Minute
)

// Actor is the participant behind an inbound action.
type Actor struct {
	ID   int64
	Name string
}

// LifecycleOptions wires the state machine to its collaborators.
type LifecycleOptions struct {
	Store     *Store
	Presenter Presenter
	Scheduler *Scheduler
	Authorize AuthorizePolicy

	ReceiverIDs     []int64
	ReminderDelay   time.Duration
	EscalationDelay time.Duration
	// EscalationMention is prepended to the aggregate notice, typically the
	// moderator's @username.
	EscalationMention string

	// Submit runs outbound presentation work off the event loop. Nil means
	// synchronous.
	Submit func(func())

	Logger *slog.Logger
}

// Lifecycle is the task state machine: finalization, response bookkeeping and
// the open / in-progress / resolved transitions. State commits to the store
// first; presentation side effects follow and may fail without desyncing
// anything.
type Lifecycle struct {
	store     *Store
	presenter Presenter
	scheduler *Scheduler
	authorize AuthorizePolicy

	receiverIDs       []int64
	reminderDelay     time.Duration
	escalationDelay   time.Duration
	escalationMention string

	submit func(func())
	logger *slog.Logger
}

func NewLifecycle(opts LifecycleOptions) *Lifecycle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authorize := opts.Authorize
	if authorize == nil {
		authorize = PolicyAnyone()
	}
	reminderDelay := opts.ReminderDelay
	if reminderDelay <= 0 {
		reminderDelay = DefaultReminderDelay
	}
	escalationDelay := opts.EscalationDelay
	if escalationDelay <= reminderDelay {
		escalationDelay = DefaultEscalationDelay
		if escalationDelay <= reminderDelay {
			escalationDelay = reminderDelay * 2
		}
	}
	submit := opts.Submit
	if submit == nil {
		submit = func(fn func()) { fn() }
	}
	return &Lifecycle{
		store:             opts.Store,
		presenter:         opts.Presenter,
		scheduler:         opts.Scheduler,
		authorize:         authorize,
		receiverIDs:       append([]int64(nil), opts.ReceiverIDs...),
		reminderDelay:     reminderDelay,
		escalationDelay:   escalationDelay,
		escalationMention: strings.TrimSpace(opts.EscalationMention),
		submit:            submit,
		logger:            logger,
	}
}

// FinalizeDraft turns the sender's completed draft into a live task: identity
// assignment, initial broadcast, thread creation, and timer arming. The task
// exists even if some publishing steps fail.
func (l *Lifecycle) FinalizeDraft(senderID int64, senderName string) (*Task, error) {
	task, err := l.store.Finalize(senderID, senderName)
	if err != nil {
		return nil, err
	}
	l.logger.Info("task_finalized", "task_id", task.ID, "sender_id", senderID)

	summaryRef, err := l.presenter.PublishSummary(*task)
	if err != nil {
		l.logger.Error("transport_error", "op", "publish_summary", "task_id", task.ID, "error", err.Error())
	}
	threadRef, threadMsgRef, err := l.presenter.PublishThreadRoot(*task)
	if err != nil {
		l.logger.Error("transport_error", "op", "publish_thread", "task_id", task.ID, "error", err.Error())
	}
	if summaryRef != 0 || threadRef != 0 {
		refs := PublishedRefs{
			SummaryMessageID: summaryRef,
			ThreadID:         threadRef,
			ThreadMessageID:  threadMsgRef,
		}
		if err := l.store.AttachPublishedRefs(task.ID, refs); err != nil {
			l.logger.Error("attach_refs_error", "task_id", task.ID, "error", err.Error())
		}
		task.Refs = &refs
	}

	now := l.store.Now()
	for _, receiverID := range l.receiverIDs {
		receiverID := receiverID
		broadcast := *task
		l.submit(func() {
			if err := l.presenter.BroadcastTask(receiverID, broadcast); err != nil {
				l.logger.Error("transport_error", "op", "broadcast", "task_id", broadcast.ID, "receiver_id", receiverID, "error", err.Error())
			}
		})
		l.scheduler.Schedule(Escalation{
			TaskID:        task.ID,
			ParticipantID: receiverID,
			Kind:          KindReminder,
			FireAt:        now.Add(l.reminderDelay),
		})
	}
	l.scheduler.Schedule(Escalation{
		TaskID: task.ID,
		Kind:   KindAggregate,
		FireAt: now.Add(l.escalationDelay),
	})

	if err := l.presenter.ConfirmCreated(senderID, task.ID); err != nil {
		l.logger.Error("transport_error", "op", "confirm_created", "task_id", task.ID, "error", err.Error())
	}
	return task, nil
}

// Respond records a receiver's answer. Responses are accepted in any
// resolution state, including after resolve; they never transition the task.
func (l *Lifecycle) Respond(taskID int64, actor Actor, kind ResponseKind) (*Task, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("dispatch: unknown response kind %q", kind)
	}
	task, err := l.store.RecordResponse(taskID, actor.ID, actor.Name, kind)
	if err != nil {
		return nil, err
	}
	l.logger.Info("response_recorded", "task_id", taskID, "participant_id", actor.ID, "kind", string(kind))
	l.refreshViews(task)
	return task, nil
}

// Apply performs a privileged thread action after the authorization policy
// admits the actor.
func (l *Lifecycle) Apply(taskID int64, actor Actor, action Action) (*Task, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("dispatch: unknown action %q", action)
	}
	if !l.authorize(actor.ID, action) {
		return nil, fmt.Errorf("%w: %s by %d", ErrUnauthorized, action, actor.ID)
	}
	switch action {
	case ActionTake:
		return l.take(taskID, actor)
	case ActionResolve:
		return l.resolve(taskID, actor)
	default:
		return l.reopen(taskID, actor)
	}
}

func (l *Lifecycle) take(taskID int64, actor Actor) (*Task, error) {
	task, err := l.store.SetTaken(taskID, actor.Name)
	if err != nil {
		return nil, err
	}
	l.logger.Info("task_taken", "task_id", taskID, "participant_id", actor.ID)
	if task.Refs != nil {
		l.renameThread(task)
	}
	l.refreshViews(task)
	return task, nil
}

func (l *Lifecycle) resolve(taskID int64, actor Actor) (*Task, error) {
	task, err := l.store.SetResolved(taskID, true)
	if err != nil {
		if errors.Is(err, ErrNoOp) {
			return nil, fmt.Errorf("%w: #%d", ErrAlreadyResolved, taskID)
		}
		return nil, err
	}
	l.logger.Info("task_resolved", "task_id", taskID, "participant_id", actor.ID)
	if task.Refs != nil {
		l.renameThread(task)
		if err := l.presenter.CloseThread(task.Refs.ThreadID); err != nil {
			l.logger.Error("transport_error", "op", "close_thread", "task_id", taskID, "error", err.Error())
		}
	}
	l.refreshViews(task)
	return task, nil
}

func (l *Lifecycle) reopen(taskID int64, actor Actor) (*Task, error) {
	task, err := l.store.SetResolved(taskID, false)
	if err != nil {
		if errors.Is(err, ErrNoOp) {
			return nil, fmt.Errorf("%w: #%d", ErrAlreadyOpen, taskID)
		}
		return nil, err
	}
	l.logger.Info("task_reopened", "task_id", taskID, "participant_id", actor.ID)
	if task.Refs != nil {
		if err := l.presenter.ReopenThread(task.Refs.ThreadID); err != nil {
			l.logger.Error("transport_error", "op", "reopen_thread", "task_id", taskID, "error", err.Error())
		}
		l.renameThread(task)
	}
	l.refreshViews(task)
	return task, nil
}

// HandleEscalation runs a fired scheduler action. The responded-set check
// happens here, at fire time, so answers given after scheduling correctly
// suppress reminders.
func (l *Lifecycle) HandleEscalation(e Escalation) {
	task, err := l.store.Get(e.TaskID)
	if err != nil {
		l.scheduler.Settle(e, OutcomeSkipped, "task not found")
		return
	}

	switch e.Kind {
	case KindReminder:
		if task.HasResponded(e.ParticipantID) {
			l.logger.Info("reminder_skipped", "task_id", e.TaskID, "participant_id", e.ParticipantID)
			l.scheduler.Settle(e, OutcomeSkipped, "already responded")
			return
		}
		text := fmt.Sprintf("⏰ Напоминание! Пожалуйста, ответьте на задачу #%d.", e.TaskID)
		if err := l.presenter.NotifyParticipant(e.ParticipantID, text); err != nil {
			l.logger.Error("transport_error", "op", "reminder", "task_id", e.TaskID, "participant_id", e.ParticipantID, "error", err.Error())
			l.scheduler.Settle(e, OutcomeFailed, err.Error())
			return
		}
		l.logger.Info("reminder_sent", "task_id", e.TaskID, "participant_id", e.ParticipantID)
		l.scheduler.Settle(e, OutcomeDelivered, "")

	case KindAggregate:
		names := l.unansweredNames(task)
		if len(names) == 0 {
			l.logger.Info("escalation_skipped", "task_id", e.TaskID)
			l.scheduler.Settle(e, OutcomeSkipped, "all responded")
			return
		}
		var b strings.Builder
		if l.escalationMention != "" {
			b.WriteString(l.escalationMention)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Следующие специалисты не дали ответ на задачу #%d в течение часа:\n%s",
			e.TaskID, strings.Join(names, ", "))
		if err := l.presenter.PostVenueNotice(b.String()); err != nil {
			l.logger.Error("transport_error", "op", "escalation", "task_id", e.TaskID, "error", err.Error())
			l.scheduler.Settle(e, OutcomeFailed, err.Error())
			return
		}
		l.logger.Info("escalation_fired", "task_id", e.TaskID, "unanswered", len(names))
		l.scheduler.Settle(e, OutcomeDelivered, strings.Join(names, ", "))
	}
}

// unansweredNames resolves display names for receivers missing from the
// responded set. A failed lookup drops that one participant, never the whole
// notice.
func (l *Lifecycle) unansweredNames(task *Task) []string {
	var names []string
	for _, receiverID := range l.receiverIDs {
		if task.HasResponded(receiverID) {
			continue
		}
		name, err := l.presenter.ResolveDisplayName(receiverID)
		if err != nil {
			l.logger.Warn("display_name_error", "participant_id", receiverID, "error", err.Error())
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (l *Lifecycle) renameThread(task *Task) {
	if err := l.presenter.RenameThread(task.Refs.ThreadID, task.TopicTitle()); err != nil {
		l.logger.Error("transport_error", "op", "rename_thread", "task_id", task.ID, "error", err.Error())
	}
}

// refreshViews re-renders the summary and thread status messages. Both are
// display-only; errors are logged and dropped.
func (l *Lifecycle) refreshViews(task *Task) {
	if task.Refs == nil {
		return
	}
	refs := *task.Refs
	view := *task
	l.submit(func() {
		if refs.SummaryMessageID != 0 {
			if err := l.presenter.UpdateSummary(refs.SummaryMessageID, view); err != nil {
				l.logger.Error("transport_error", "op", "update_summary", "task_id", view.ID, "error", err.Error())
			}
		}
		if refs.ThreadMessageID != 0 {
			if err := l.presenter.UpdateThreadRoot(refs.ThreadID, refs.ThreadMessageID, view); err != nil {
				l.logger.Error("transport_error", "op", "update_thread", "task_id", view.ID, "error", err.Error())
			}
		}
	})
}
