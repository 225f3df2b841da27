package dispatch

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EscalationKind distinguishes a per-receiver reminder from the one aggregate
// notice naming everyone who still has not answered.
type EscalationKind string

const (
	KindReminder  EscalationKind = "reminder"
	KindAggregate EscalationKind = "aggregate"
)

// Escalation is a one-shot scheduled action carrying every identifier it needs
// by value, so firing never depends on captured loop state.
type Escalation struct {
	ID            string         `json:"id"`
	TaskID        int64          `json:"task_id"`
	ParticipantID int64          `json:"participant_id,omitempty"` // zero for aggregate
	Kind          EscalationKind `json:"kind"`
	FireAt        time.Time      `json:"fire_at"`
}

// EscalationOutcome is what happened when a scheduled action fired.
type EscalationOutcome string

const (
	OutcomeDelivered EscalationOutcome = "delivered"
	OutcomeSkipped   EscalationOutcome = "skipped"
	OutcomeFailed    EscalationOutcome = "failed"
)

// Journal persists scheduled escalations so they can be re-armed after a
// restart. Implementations live outside the core; a nil journal degrades to
// in-memory scheduling.
type Journal interface {
	Record(e Escalation) error
	MarkFired(id string, outcome EscalationOutcome, detail string) error
	Cancel(taskID int64) error
	Pending() ([]Escalation, error)
}

// Scheduler arms one-shot timers and hands fired escalations to a single
// consumer. Suppression of moot reminders happens at fire time, in the
// consumer, not by removing timers here.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	byTask  map[int64]map[string]struct{}
	fire    func(Escalation)
	journal Journal
	logger  *slog.Logger

	Now func() time.Time
}

func NewScheduler(fire func(Escalation), journal Journal, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		timers:  map[string]*time.Timer{},
		byTask:  map[int64]map[string]struct{}{},
		fire:    fire,
		journal: journal,
		logger:  logger,
		Now:     time.Now,
	}
}

// Schedule enqueues a one-shot action. Past-due fire times (journal recovery
// after downtime) fire immediately.
func (s *Scheduler) Schedule(e Escalation) {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if s.journal != nil {
		if err := s.journal.Record(e); err != nil {
			s.logger.Warn("escalation_journal_error", "escalation_id", e.ID, "task_id", e.TaskID, "error", err.Error())
		}
	}

	delay := e.FireAt.Sub(s.Now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[e.ID] = time.AfterFunc(delay, func() { s.fired(e) })
	if s.byTask[e.TaskID] == nil {
		s.byTask[e.TaskID] = map[string]struct{}{}
	}
	s.byTask[e.TaskID][e.ID] = struct{}{}
	s.logger.Debug("escalation_scheduled", "escalation_id", e.ID, "task_id", e.TaskID, "kind", string(e.Kind), "fire_at", e.FireAt)
}

func (s *Scheduler) fired(e Escalation) {
	s.mu.Lock()
	delete(s.timers, e.ID)
	if ids := s.byTask[e.TaskID]; ids != nil {
		delete(ids, e.ID)
		if len(ids) == 0 {
			delete(s.byTask, e.TaskID)
		}
	}
	fire := s.fire
	s.mu.Unlock()
	if fire != nil {
		fire(e)
	}
}

// Settle records the fire outcome in the journal.
func (s *Scheduler) Settle(e Escalation, outcome EscalationOutcome, detail string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkFired(e.ID, outcome, detail); err != nil {
		s.logger.Warn("escalation_journal_error", "escalation_id", e.ID, "task_id", e.TaskID, "error", err.Error())
	}
}

// CancelAllFor drops every still-pending action tied to the task. Not part of
// the normal flow (tasks are never deleted) but kept for completeness.
func (s *Scheduler) CancelAllFor(taskID int64) {
	s.mu.Lock()
	ids := s.byTask[taskID]
	delete(s.byTask, taskID)
	for id := range ids {
		if timer, ok := s.timers[id]; ok {
			timer.Stop()
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Cancel(taskID); err != nil {
			s.logger.Warn("escalation_journal_error", "task_id", taskID, "error", err.Error())
		}
	}
}

// ArmPending re-arms every journaled escalation that never fired. Losing these
// across a restart would be acceptable; with a journal we do better.
func (s *Scheduler) ArmPending() int {
	if s.journal == nil {
		return 0
	}
	pending, err := s.journal.Pending()
	if err != nil {
		s.logger.Warn("escalation_journal_error", "error", err.Error())
		return 0
	}
	for _, e := range pending {
		s.Schedule(e)
	}
	if len(pending) > 0 {
		s.logger.Info("escalations_rearmed", "count", len(pending))
	}
	return len(pending)
}

// Stop cancels all timers, for shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.byTask = map[int64]map[string]struct{}{}
}
