package dispatch

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxTopicLength bounds the client name fragment inside a topic title.
	MaxTopicLength = 20

	// TopicIconColor is the Telegram forum topic icon color used for new tasks.
	TopicIconColor = 7322096
)

// ResponseKind is a receiver's answer to a broadcast task. Closed enumeration;
// extend by adding a member plus its label, never free text.
type ResponseKind string

const (
	ResponseWillTake           ResponseKind = "take"
	ResponseNeedsClarification ResponseKind = "no_competence"
	ResponseCannotTake         ResponseKind = "cant_take"
)

var responseLabels = map[ResponseKind]string{
	ResponseWillTake:           "готов взять задачу",
	ResponseNeedsClarification: "не уверен, нужны уточнения",
	ResponseCannotTake:         "не может взять задачу",
}

func (k ResponseKind) Valid() bool {
	_, ok := responseLabels[k]
	return ok
}

func (k ResponseKind) Label() string {
	return responseLabels[k]
}

// Status is the resolution state of a task. Reopened behaves exactly like Open
// for further transitions; it only renders differently.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusReopened   Status = "reopened"
)

func (s Status) Resolved() bool {
	return s == StatusResolved
}

func (s Status) Marker() string {
	switch s {
	case StatusInProgress:
		return "🟡"
	case StatusResolved:
		return "🟢"
	case StatusReopened:
		return "🔄"
	default:
		return "🔴"
	}
}

// Response is one receiver's recorded answer.
type Response struct {
	Name string       `json:"name"`
	Kind ResponseKind `json:"kind"`
}

// PublishedRefs are the external presentation handles attached once per task at
// publish time.
type PublishedRefs struct {
	SummaryMessageID int64 `json:"summary_message_id"`
	ThreadID         int64 `json:"thread_id"`
	ThreadMessageID  int64 `json:"thread_message_id"`
}

// Task is a finalized unit of work. Identity is immutable once assigned and is
// never reused.
type Task struct {
	ID           int64               `json:"id"`
	Fields       map[FieldKey]string `json:"fields"`
	SenderID     int64               `json:"sender_id"`
	SenderName   string              `json:"sender_name"`
	Status       Status              `json:"status"`
	TakenBy      string              `json:"taken_by,omitempty"`
	Responses    map[int64]Response  `json:"responses,omitempty"`
	Responded    map[int64]struct{}  `json:"-"`
	RespondedIDs []int64             `json:"responded_ids,omitempty"`
	Refs         *PublishedRefs      `json:"refs,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

func (t *Task) Resolved() bool {
	return t.Status.Resolved()
}

func (t *Task) ClientName() string {
	return strings.TrimSpace(t.Fields[FieldClientName])
}

// Photo returns the attachment reference, empty when the step was skipped.
func (t *Task) Photo() string {
	return strings.TrimSpace(t.Fields[FieldPhoto])
}

// TopicTitle is the discussion thread title for the task's current status.
func (t *Task) TopicTitle() string {
	name := t.ClientName()
	if len([]rune(name)) > MaxTopicLength {
		name = string([]rune(name)[:MaxTopicLength])
	}
	return fmt.Sprintf("%s %d %s", t.Status.Marker(), t.ID, name)
}

// HasResponded reports whether the participant already answered, regardless of
// which answer they gave.
func (t *Task) HasResponded(participantID int64) bool {
	_, ok := t.Responded[participantID]
	return ok
}

func (t *Task) clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Fields = make(map[FieldKey]string, len(t.Fields))
	for k, v := range t.Fields {
		out.Fields[k] = v
	}
	out.Responses = make(map[int64]Response, len(t.Responses))
	for k, v := range t.Responses {
		out.Responses[k] = v
	}
	out.Responded = make(map[int64]struct{}, len(t.Responded))
	for k := range t.Responded {
		out.Responded[k] = struct{}{}
	}
	out.RespondedIDs = append([]int64(nil), t.RespondedIDs...)
	if t.Refs != nil {
		refs := *t.Refs
		out.Refs = &refs
	}
	return &out
}

// rebuildResponded restores the O(1) responded set from the persisted id list.
func (t *Task) rebuildResponded() {
	t.Responded = make(map[int64]struct{}, len(t.RespondedIDs))
	for _, id := range t.RespondedIDs {
		t.Responded[id] = struct{}{}
	}
	if t.Fields == nil {
		t.Fields = map[FieldKey]string{}
	}
	if t.Responses == nil {
		t.Responses = map[int64]Response{}
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
}
