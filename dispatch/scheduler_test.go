package dispatch

import (
	"sync"
	"testing"
	"time"
)

type stubJournal struct {
	mu       sync.Mutex
	records  map[string]Escalation
	fired    map[string]EscalationOutcome
	canceled []int64
	onRecord func(Escalation)
	pending  []Escalation
}

func (j *stubJournal) Record(e Escalation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.records == nil {
		j.records = map[string]Escalation{}
	}
	j.records[e.ID] = e
	if j.onRecord != nil {
		j.onRecord(e)
	}
	return nil
}

func (j *stubJournal) MarkFired(id string, outcome EscalationOutcome, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fired == nil {
		j.fired = map[string]EscalationOutcome{}
	}
	j.fired[id] = outcome
	return nil
}

func (j *stubJournal) Cancel(taskID int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.canceled = append(j.canceled, taskID)
	return nil
}

func (j *stubJournal) Pending() ([]Escalation, error) {
	return append([]Escalation(nil), j.pending...), nil
}

func TestSchedulerFiresDueActions(t *testing.T) {
	fired := make(chan Escalation, 4)
	s := NewScheduler(func(e Escalation) { fired <- e }, nil, nil)
	t.Cleanup(s.Stop)

	s.Schedule(Escalation{TaskID: 1, ParticipantID: 201, Kind: KindReminder, FireAt: time.Now().Add(10 * time.Millisecond)})

	select {
	case e := <-fired:
		if e.TaskID != 1 || e.ParticipantID != 201 || e.Kind != KindReminder {
			t.Fatalf("fired wrong escalation: %#v", e)
		}
		if e.ID == "" {
			t.Fatalf("scheduler should assign an id")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("escalation never fired")
	}
}

func TestSchedulerPastDueFiresImmediately(t *testing.T) {
	fired := make(chan Escalation, 1)
	s := NewScheduler(func(e Escalation) { fired <- e }, nil, nil)
	t.Cleanup(s.Stop)

	s.Schedule(Escalation{TaskID: 2, Kind: KindAggregate, FireAt: time.Now().Add(-time.Hour)})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("past-due escalation never fired")
	}
}

func TestSchedulerCancelAllFor(t *testing.T) {
	fired := make(chan Escalation, 4)
	journal := &stubJournal{}
	s := NewScheduler(func(e Escalation) { fired <- e }, journal, nil)
	t.Cleanup(s.Stop)

	s.Schedule(Escalation{TaskID: 3, ParticipantID: 201, Kind: KindReminder, FireAt: time.Now().Add(time.Hour)})
	s.Schedule(Escalation{TaskID: 3, Kind: KindAggregate, FireAt: time.Now().Add(time.Hour)})
	s.CancelAllFor(3)

	select {
	case e := <-fired:
		t.Fatalf("canceled escalation fired: %#v", e)
	case <-time.After(50 * time.Millisecond):
	}
	if len(journal.canceled) != 1 || journal.canceled[0] != 3 {
		t.Fatalf("journal cancel not propagated: %#v", journal.canceled)
	}
}

func TestSchedulerJournalsAndSettles(t *testing.T) {
	journal := &stubJournal{}
	fired := make(chan Escalation, 1)
	s := NewScheduler(func(e Escalation) { fired <- e }, journal, nil)
	t.Cleanup(s.Stop)

	s.Schedule(Escalation{TaskID: 4, ParticipantID: 201, Kind: KindReminder, FireAt: time.Now().Add(5 * time.Millisecond)})

	var e Escalation
	select {
	case e = <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("escalation never fired")
	}
	if _, ok := journal.records[e.ID]; !ok {
		t.Fatalf("escalation not journaled: %#v", journal.records)
	}

	s.Settle(e, OutcomeSkipped, "already responded")
	if journal.fired[e.ID] != OutcomeSkipped {
		t.Fatalf("settle outcome = %v, want skipped", journal.fired[e.ID])
	}
}

func TestSchedulerArmPending(t *testing.T) {
	fired := make(chan Escalation, 2)
	journal := &stubJournal{pending: []Escalation{
		{ID: "p1", TaskID: 5, ParticipantID: 201, Kind: KindReminder, FireAt: time.Now().Add(-time.Minute)},
		{ID: "p2", TaskID: 5, Kind: KindAggregate, FireAt: time.Now().Add(5 * time.Millisecond)},
	}}
	s := NewScheduler(func(e Escalation) { fired <- e }, journal, nil)
	t.Cleanup(s.Stop)

	if n := s.ArmPending(); n != 2 {
		t.Fatalf("ArmPending() = %d, want 2", n)
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-fired:
			seen[e.ID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("re-armed escalations never fired: %v", seen)
		}
	}
	if !seen["p1"] || !seen["p2"] {
		t.Fatalf("wrong escalations fired: %v", seen)
	}
}
