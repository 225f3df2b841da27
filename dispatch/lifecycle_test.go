package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type lifecycleFixture struct {
	store     *Store
	presenter *stubPresenter
	scheduler *Scheduler
	lifecycle *Lifecycle
	fired     []Escalation
}

func newLifecycleFixture(t *testing.T, receivers []int64, policy AuthorizePolicy) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		store:     newTestStore(t),
		presenter: newStubPresenter(),
	}
	f.scheduler = NewScheduler(func(e Escalation) { f.fired = append(f.fired, e) }, nil, nil)
	f.scheduler.Now = f.store.Now
	t.Cleanup(f.scheduler.Stop)
	f.lifecycle = NewLifecycle(LifecycleOptions{
		Store:           f.store,
		Presenter:       f.presenter,
		Scheduler:       f.scheduler,
		Authorize:       policy,
		ReceiverIDs:     receivers,
		ReminderDelay:   30 * time.Minute,
		EscalationDelay: time.Hour,
	})
	return f
}

func (f *lifecycleFixture) finalizeTask(t *testing.T) *Task {
	t.Helper()
	fillDraft(t, f.store, 10)
	task, err := f.lifecycle.FinalizeDraft(10, "Анна")
	if err != nil {
		t.Fatalf("FinalizeDraft() error = %v", err)
	}
	return task
}

func TestFinalizePublishesAndBroadcasts(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201, 202}, nil)
	task := f.finalizeTask(t)

	if task.Refs == nil || task.Refs.ThreadID == 0 || task.Refs.SummaryMessageID == 0 {
		t.Fatalf("published refs missing: %#v", task.Refs)
	}
	for _, want := range []string{
		fmt.Sprintf("publish_summary #%d", task.ID),
		fmt.Sprintf("publish_thread #%d", task.ID),
		fmt.Sprintf("broadcast #%d -> 201", task.ID),
		fmt.Sprintf("broadcast #%d -> 202", task.ID),
		fmt.Sprintf("confirm 10 #%d", task.ID),
	} {
		if !f.presenter.contains(want) {
			t.Fatalf("missing presenter call %q in %v", want, f.presenter.Calls())
		}
	}

	stored, err := f.store.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Refs == nil || stored.Refs.ThreadID != task.Refs.ThreadID {
		t.Fatalf("refs not attached in store: %#v", stored.Refs)
	}
}

func TestResolveClosesThreadOnce(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201}, nil)
	task := f.finalizeTask(t)

	resolved, err := f.lifecycle.Apply(task.ID, Actor{ID: 201, Name: "Алиса"}, ActionResolve)
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	if !resolved.Resolved() {
		t.Fatalf("status = %s, want resolved", resolved.Status)
	}
	if !f.presenter.contains(fmt.Sprintf("close_thread %d", task.Refs.ThreadID)) {
		t.Fatalf("thread not closed: %v", f.presenter.Calls())
	}
	if !f.presenter.contains("🟢") {
		t.Fatalf("thread not relabeled with resolved marker: %v", f.presenter.Calls())
	}

	closeCalls := 0
	for _, call := range f.presenter.Calls() {
		if strings.HasPrefix(call, "close_thread") {
			closeCalls++
		}
	}
	if _, err := f.lifecycle.Apply(task.ID, Actor{ID: 201}, ActionResolve); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second resolve error = %v, want ErrAlreadyResolved", err)
	}
	after := 0
	for _, call := range f.presenter.Calls() {
		if strings.HasPrefix(call, "close_thread") {
			after++
		}
	}
	if after != closeCalls {
		t.Fatalf("thread double-closed: %d -> %d", closeCalls, after)
	}
}

func TestReopenGuardsAndRelabels(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201}, nil)
	task := f.finalizeTask(t)

	if _, err := f.lifecycle.Apply(task.ID, Actor{ID: 201}, ActionReopen); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("reopen open task error = %v, want ErrAlreadyOpen", err)
	}
	if _, err := f.lifecycle.Apply(task.ID, Actor{ID: 201}, ActionResolve); err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	reopened, err := f.lifecycle.Apply(task.ID, Actor{ID: 201}, ActionReopen)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if reopened.Status != StatusReopened {
		t.Fatalf("status = %s, want reopened", reopened.Status)
	}
	if !f.presenter.contains(fmt.Sprintf("reopen_thread %d", task.Refs.ThreadID)) {
		t.Fatalf("thread not reopened: %v", f.presenter.Calls())
	}
}

func TestTakeAnnotatesWithoutResponseEntry(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201}, nil)
	task := f.finalizeTask(t)

	taken, err := f.lifecycle.Apply(task.ID, Actor{ID: 201, Name: "Алиса"}, ActionTake)
	if err != nil {
		t.Fatalf("take error = %v", err)
	}
	if taken.Status != StatusInProgress || taken.TakenBy != "Алиса" {
		t.Fatalf("take result: status=%s taken_by=%q", taken.Status, taken.TakenBy)
	}
	if len(taken.Responses) != 0 || taken.HasResponded(201) {
		t.Fatalf("take must not create a response entry: %#v", taken.Responses)
	}

	// Another participant may take it over; the annotation just flips.
	again, err := f.lifecycle.Apply(task.ID, Actor{ID: 202, Name: "Борис"}, ActionTake)
	if err != nil {
		t.Fatalf("second take error = %v", err)
	}
	if again.TakenBy != "Борис" {
		t.Fatalf("taken_by = %q, want overwrite", again.TakenBy)
	}
}

func TestRespondAcceptedAfterResolve(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201}, nil)
	task := f.finalizeTask(t)

	if _, err := f.lifecycle.Apply(task.ID, Actor{ID: 201}, ActionResolve); err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	late, err := f.lifecycle.Respond(task.ID, Actor{ID: 202, Name: "Борис"}, ResponseNeedsClarification)
	if err != nil {
		t.Fatalf("late response error = %v", err)
	}
	if !late.Resolved() || !late.HasResponded(202) {
		t.Fatalf("late response must not change resolution: %#v", late)
	}
}

func TestAuthorizationPolicyApplied(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201}, PolicyReceivers([]int64{201}))
	task := f.finalizeTask(t)

	if _, err := f.lifecycle.Apply(task.ID, Actor{ID: 999}, ActionResolve); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider resolve error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.lifecycle.Apply(task.ID, Actor{ID: 201}, ActionResolve); err != nil {
		t.Fatalf("receiver resolve error = %v", err)
	}
}

func TestReminderSuppressedAfterResponse(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201, 202}, nil)
	task := f.finalizeTask(t)

	if _, err := f.lifecycle.Respond(task.ID, Actor{ID: 201, Name: "Алиса"}, ResponseWillTake); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	f.lifecycle.HandleEscalation(Escalation{ID: "r1", TaskID: task.ID, ParticipantID: 201, Kind: KindReminder})
	f.lifecycle.HandleEscalation(Escalation{ID: "r2", TaskID: task.ID, ParticipantID: 202, Kind: KindReminder})

	if f.presenter.contains("notify 201") {
		t.Fatalf("responder must not be reminded: %v", f.presenter.Calls())
	}
	if !f.presenter.contains("notify 202") {
		t.Fatalf("non-responder should be reminded: %v", f.presenter.Calls())
	}
}

func TestAggregateNamesOnlyNonResponders(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201, 202, 203}, nil)
	task := f.finalizeTask(t)

	if _, err := f.lifecycle.Respond(task.ID, Actor{ID: 201, Name: "Алиса"}, ResponseWillTake); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	// 203's display name lookup fails; the escalation still goes out.
	f.presenter.displayNameFn = func(id int64) (string, error) {
		if id == 203 {
			return "", fmt.Errorf("user left the chat")
		}
		return fmt.Sprintf("user-%d", id), nil
	}

	f.lifecycle.HandleEscalation(Escalation{ID: "agg", TaskID: task.ID, Kind: KindAggregate})

	var notice string
	for _, call := range f.presenter.Calls() {
		if strings.HasPrefix(call, "venue_notice") {
			notice = call
		}
	}
	if notice == "" {
		t.Fatalf("no aggregate notice posted: %v", f.presenter.Calls())
	}
	if strings.Contains(notice, "user-201") {
		t.Fatalf("responder named in escalation: %q", notice)
	}
	if !strings.Contains(notice, "user-202") {
		t.Fatalf("non-responder missing from escalation: %q", notice)
	}
	if strings.Contains(notice, "user-203") {
		t.Fatalf("failed lookup should omit participant: %q", notice)
	}
}

func TestAggregateSkippedWhenAllResponded(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201}, nil)
	task := f.finalizeTask(t)

	if _, err := f.lifecycle.Respond(task.ID, Actor{ID: 201, Name: "Алиса"}, ResponseCannotTake); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	f.lifecycle.HandleEscalation(Escalation{ID: "agg", TaskID: task.ID, Kind: KindAggregate})

	if f.presenter.contains("venue_notice") {
		t.Fatalf("aggregate should be a no-op: %v", f.presenter.Calls())
	}
}

func TestFinalizeArmsTimers(t *testing.T) {
	f := newLifecycleFixture(t, []int64{201, 202}, nil)

	var scheduled []Escalation
	journal := &stubJournal{onRecord: func(e Escalation) { scheduled = append(scheduled, e) }}
	f.scheduler.journal = journal

	task := f.finalizeTask(t)

	reminders, aggregates := 0, 0
	for _, e := range scheduled {
		if e.TaskID != task.ID {
			t.Fatalf("escalation for wrong task: %#v", e)
		}
		switch e.Kind {
		case KindReminder:
			reminders++
		case KindAggregate:
			aggregates++
		}
	}
	if reminders != 2 || aggregates != 1 {
		t.Fatalf("scheduled = %d reminders, %d aggregates; want 2 and 1", reminders, aggregates)
	}
}
