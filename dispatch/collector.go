package dispatch

import "strings"

// FieldInput is one sender message during intake: either a text payload, a
// media reference, or an explicit skip signal.
type FieldInput struct {
	Text        string
	PhotoFileID string
	Skip        bool
}

type SubmitOutcome int

const (
	// OutcomeIgnored means no state changed and no reply is owed.
	OutcomeIgnored SubmitOutcome = iota
	OutcomeNextPrompt
	OutcomeComplete
)

type SubmitResult struct {
	Outcome SubmitOutcome
	Next    FieldSpec
	Draft   *Draft
}

// Collector drives the step-by-step intake of task fields. It only mutates
// pending drafts; finalization and publishing belong to the caller.
type Collector struct {
	store *Store
}

func NewCollector(store *Store) *Collector {
	return &Collector{store: store}
}

// Begin starts (or restarts) a draft for the sender and returns the first
// field to prompt for.
func (c *Collector) Begin(senderID int64) FieldSpec {
	draft := c.store.BeginDraft(senderID)
	next, _ := draft.NextField()
	return next
}

// SubmitField fills exactly the first unset field of the sender's pending
// draft. Input is ignored when the sender has no draft, when the draft is
// already complete, or when the payload does not fit the field (skip on a
// non-skippable field, text on the attachment field, empty text elsewhere).
func (c *Collector) SubmitField(senderID int64, input FieldInput) SubmitResult {
	draft, ok := c.store.DraftFor(senderID)
	if !ok {
		return SubmitResult{Outcome: OutcomeIgnored}
	}
	field, more := draft.NextField()
	if !more {
		return SubmitResult{Outcome: OutcomeIgnored}
	}

	if input.Skip {
		if !field.AllowSkip {
			return SubmitResult{Outcome: OutcomeIgnored}
		}
		draft.skip(field.Key)
	} else if field.Key == FieldPhoto {
		fileID := strings.TrimSpace(input.PhotoFileID)
		if fileID == "" {
			return SubmitResult{Outcome: OutcomeIgnored}
		}
		draft.set(field.Key, fileID)
	} else {
		text := strings.TrimSpace(input.Text)
		if text == "" {
			return SubmitResult{Outcome: OutcomeIgnored}
		}
		draft.set(field.Key, text)
	}

	if next, more := draft.NextField(); more {
		return SubmitResult{Outcome: OutcomeNextPrompt, Next: next, Draft: draft}
	}
	return SubmitResult{Outcome: OutcomeComplete, Draft: draft}
}
