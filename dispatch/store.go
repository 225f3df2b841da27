package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nnthruslpn/telegram-bot/internal/fsstore"
)

// stateFile is the durable record. Only next_task_id is contractual; the task
// table rides along best-effort so a restart keeps history.
type stateFile struct {
	NextTaskID int64    `json:"next_task_id"`
	Tasks      []*Task  `json:"tasks,omitempty"`
	Drafts     []*Draft `json:"drafts,omitempty"`
}

// Store owns all mutable task state: the live task table, pending drafts and
// the identity counter. Identity allocation is the single serialization point.
type Store struct {
	mu     sync.Mutex
	path   string
	nextID int64
	tasks  map[int64]*Task
	drafts map[int64]*Draft

	Now    func() time.Time
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   strings.TrimSpace(path),
		nextID: 1,
		tasks:  map[int64]*Task{},
		drafts: map[int64]*Draft{},
		Now:    time.Now,
		logger: logger,
	}
}

// Load reads the persisted state. Absent or corrupt files start empty with
// counter 1; they are never fatal.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}

	var state stateFile
	found, err := fsstore.ReadJSON(s.path, &state)
	if err != nil {
		s.logger.Warn("task_state_load_error", "path", s.path, "error", err.Error())
		return nil
	}
	if !found {
		s.logger.Info("task_state_missing", "path", s.path)
		return nil
	}

	if state.NextTaskID >= 1 {
		s.nextID = state.NextTaskID
	}
	for _, task := range state.Tasks {
		if task == nil || task.ID <= 0 {
			continue
		}
		task.rebuildResponded()
		s.tasks[task.ID] = task
		if task.ID >= s.nextID {
			s.nextID = task.ID + 1
		}
	}
	for _, draft := range state.Drafts {
		if draft == nil || draft.SenderID == 0 {
			continue
		}
		s.drafts[draft.SenderID] = draft
	}
	s.logger.Info("task_state_loaded", "tasks", len(s.tasks), "drafts", len(s.drafts), "next_task_id", s.nextID)
	return nil
}

// saveLocked persists the full state. Callers decide whether a failure is
// fatal; for everything but the counter it is best-effort.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	state := stateFile{NextTaskID: s.nextID}
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		task := s.tasks[id].clone()
		task.RespondedIDs = task.RespondedIDs[:0]
		for pid := range task.Responded {
			task.RespondedIDs = append(task.RespondedIDs, pid)
		}
		sort.Slice(task.RespondedIDs, func(i, j int) bool { return task.RespondedIDs[i] < task.RespondedIDs[j] })
		state.Tasks = append(state.Tasks, task)
	}
	for _, draft := range s.drafts {
		state.Drafts = append(state.Drafts, draft)
	}
	sort.Slice(state.Drafts, func(i, j int) bool { return state.Drafts[i].SenderID < state.Drafts[j].SenderID })
	return fsstore.WriteJSONAtomic(s.path, state)
}

func (s *Store) persistLocked(event string) {
	if err := s.saveLocked(); err != nil {
		s.logger.Error("task_state_save_error", "event", event, "error", err.Error())
	}
}

// BeginDraft starts a fresh draft for the sender, overwriting any existing one.
func (s *Store) BeginDraft(senderID int64) *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := NewDraft(senderID, s.Now())
	s.drafts[senderID] = draft
	return draft
}

func (s *Store) DraftFor(senderID int64) (*Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[senderID]
	return draft, ok
}

func (s *Store) DiscardDraft(senderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, senderID)
	s.persistLocked("discard_draft")
}

// Finalize turns the sender's completed draft into a live task, allocating the
// next identity and persisting the updated counter. The draft is removed
// whether or not publishing later succeeds.
func (s *Store) Finalize(senderID int64, senderName string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[senderID]
	if !ok {
		return nil, ErrNoDraft
	}
	for _, f := range TaskFields {
		if f.AllowSkip {
			continue
		}
		if !draft.filled(f.Key) {
			return nil, fmt.Errorf("%w: %s", ErrIncompleteDraft, f.Key)
		}
	}

	id := s.nextID
	s.nextID++
	task := &Task{
		ID:         id,
		Fields:     draft.fields(),
		SenderID:   senderID,
		SenderName: strings.TrimSpace(senderName),
		Status:     StatusOpen,
		Responses:  map[int64]Response{},
		Responded:  map[int64]struct{}{},
		CreatedAt:  s.Now().UTC(),
	}
	s.tasks[id] = task
	delete(s.drafts, senderID)

	if err := s.saveLocked(); err != nil {
		// The identity is burned either way; the in-memory counter stays
		// ahead so a later successful save never hands it out again.
		s.logger.Error("task_state_save_error", "event", "finalize", "task_id", id, "error", err.Error())
	}
	return task.clone(), nil
}

func (s *Store) Get(taskID int64) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrTaskNotFound, taskID)
	}
	return task.clone(), nil
}

// RecordResponse stores one participant's answer, overwriting any prior one.
// Replaying the same answer is a no-op that still succeeds.
func (s *Store) RecordResponse(taskID, participantID int64, participantName string, kind ResponseKind) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrTaskNotFound, taskID)
	}

	prev, had := task.Responses[participantID]
	task.Responses[participantID] = Response{Name: strings.TrimSpace(participantName), Kind: kind}
	task.Responded[participantID] = struct{}{}
	if !had || prev.Kind != kind {
		s.persistLocked("record_response")
	}
	return task.clone(), nil
}

// SetResolved flips the resolution state. Requesting the state the task is
// already in fails with ErrNoOp so callers never re-close an already closed
// thread.
func (s *Store) SetResolved(taskID int64, resolved bool) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrTaskNotFound, taskID)
	}
	if task.Resolved() == resolved {
		return nil, fmt.Errorf("%w: task #%d resolved=%v", ErrNoOp, taskID, resolved)
	}
	if resolved {
		task.Status = StatusResolved
	} else {
		task.Status = StatusReopened
	}
	s.persistLocked("set_resolved")
	return task.clone(), nil
}

// SetTaken marks the task in progress and records who took it. Repeated takes
// by different participants simply overwrite the annotation.
func (s *Store) SetTaken(taskID int64, participantName string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrTaskNotFound, taskID)
	}
	task.Status = StatusInProgress
	task.TakenBy = strings.TrimSpace(participantName)
	s.persistLocked("set_taken")
	return task.clone(), nil
}

// AttachPublishedRefs associates the external presentation handles, once per
// task at publish time.
func (s *Store) AttachPublishedRefs(taskID int64, refs PublishedRefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: #%d", ErrTaskNotFound, taskID)
	}
	task.Refs = &refs
	s.persistLocked("attach_refs")
	return nil
}

// Tasks returns all tasks ordered by identity.
func (s *Store) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextID exposes the counter for diagnostics.
func (s *Store) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// IsNotFound reports whether err is a task lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
