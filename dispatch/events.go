package dispatch

// Events are built once at the transport boundary and passed as structured
// data; the state machine never parses composite identifiers.

type Event interface {
	eventName() string
}

// StartDraft begins (or restarts) task intake for a sender.
type StartDraft struct {
	SenderID int64
}

// SubmitField carries one intake message from a sender.
type SubmitField struct {
	SenderID   int64
	SenderName string
	Input      FieldInput
}

// SubmitResponse is a receiver's answer to a broadcast task.
type SubmitResponse struct {
	TaskID int64
	Actor  Actor
	Kind   ResponseKind
}

// ThreadAction is a privileged transition requested from a discussion thread.
type ThreadAction struct {
	TaskID int64
	Actor  Actor
	Action Action
}

// EscalationFired re-injects a fired scheduler action into the event queue.
type EscalationFired struct {
	Escalation Escalation
}

func (StartDraft) eventName() string      { return "start_draft" }
func (SubmitField) eventName() string     { return "submit_field" }
func (SubmitResponse) eventName() string  { return "submit_response" }
func (ThreadAction) eventName() string    { return "thread_action" }
func (EscalationFired) eventName() string { return "escalation_fired" }
