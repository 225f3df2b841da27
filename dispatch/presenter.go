package dispatch

// MessageRef and ThreadRef are opaque handles into the chat platform. The core
// stores them but never interprets them.
type (
	MessageRef = int64
	ThreadRef  = int64
)

// Presenter renders task state into the chat platform. Every method is
// best-effort from the core's point of view: failures are logged at the call
// site and never roll back a committed state mutation.
type Presenter interface {
	// PublishSummary sends the aggregate status view to the main venue.
	PublishSummary(task Task) (MessageRef, error)
	// UpdateSummary re-renders a previously published summary in place.
	UpdateSummary(ref MessageRef, task Task) error

	// PublishThreadRoot creates the per-task discussion thread and posts the
	// status message with action controls into it.
	PublishThreadRoot(task Task) (ThreadRef, MessageRef, error)
	// UpdateThreadRoot re-renders the thread status message and its controls.
	UpdateThreadRoot(thread ThreadRef, msg MessageRef, task Task) error

	RenameThread(thread ThreadRef, title string) error
	CloseThread(thread ThreadRef) error
	ReopenThread(thread ThreadRef) error

	// BroadcastTask sends the task with the response keyboard to one receiver.
	BroadcastTask(participantID int64, task Task) error
	// NotifyParticipant delivers a plain best-effort direct message.
	NotifyParticipant(participantID int64, text string) error
	// PostVenueNotice posts a plain message into the shared venue.
	PostVenueNotice(text string) error

	ResolveDisplayName(participantID int64) (string, error)

	// PromptField asks the sender for the next intake field.
	PromptField(senderID int64, field FieldSpec) error
	// ConfirmCreated acknowledges a successful finalization to the sender.
	ConfirmCreated(senderID int64, taskID int64) error
}
