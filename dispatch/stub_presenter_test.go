package dispatch

import (
	"fmt"
	"strings"
	"sync"
)

// stubPresenter records every presentation call and hands out deterministic
// refs. Individual funcs can be overridden per test.
type stubPresenter struct {
	mu    sync.Mutex
	calls []string

	nextMessageID int64
	nextThreadID  int64

	notifyErr      error
	displayNameFn  func(participantID int64) (string, error)
	broadcastErr   error
	closeThreadErr error
}

func newStubPresenter() *stubPresenter {
	return &stubPresenter{nextMessageID: 100, nextThreadID: 500}
}

func (p *stubPresenter) record(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *stubPresenter) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *stubPresenter) PublishSummary(task Task) (MessageRef, error) {
	p.mu.Lock()
	p.nextMessageID++
	ref := p.nextMessageID
	p.mu.Unlock()
	p.record("publish_summary #%d -> %d", task.ID, ref)
	return ref, nil
}

func (p *stubPresenter) UpdateSummary(ref MessageRef, task Task) error {
	p.record("update_summary #%d ref=%d", task.ID, ref)
	return nil
}

func (p *stubPresenter) PublishThreadRoot(task Task) (ThreadRef, MessageRef, error) {
	p.mu.Lock()
	p.nextThreadID++
	thread := p.nextThreadID
	p.nextMessageID++
	msg := p.nextMessageID
	p.mu.Unlock()
	p.record("publish_thread #%d -> %d/%d", task.ID, thread, msg)
	return thread, msg, nil
}

func (p *stubPresenter) UpdateThreadRoot(thread ThreadRef, msg MessageRef, task Task) error {
	p.record("update_thread #%d thread=%d", task.ID, thread)
	return nil
}

func (p *stubPresenter) RenameThread(thread ThreadRef, title string) error {
	p.record("rename_thread %d %q", thread, title)
	return nil
}

func (p *stubPresenter) CloseThread(thread ThreadRef) error {
	p.record("close_thread %d", thread)
	return p.closeThreadErr
}

func (p *stubPresenter) ReopenThread(thread ThreadRef) error {
	p.record("reopen_thread %d", thread)
	return nil
}

func (p *stubPresenter) BroadcastTask(participantID int64, task Task) error {
	p.record("broadcast #%d -> %d", task.ID, participantID)
	return p.broadcastErr
}

func (p *stubPresenter) NotifyParticipant(participantID int64, text string) error {
	p.record("notify %d %q", participantID, text)
	return p.notifyErr
}

func (p *stubPresenter) PostVenueNotice(text string) error {
	p.record("venue_notice %q", text)
	return nil
}

func (p *stubPresenter) ResolveDisplayName(participantID int64) (string, error) {
	if p.displayNameFn != nil {
		return p.displayNameFn(participantID)
	}
	return fmt.Sprintf("user-%d", participantID), nil
}

func (p *stubPresenter) PromptField(senderID int64, field FieldSpec) error {
	p.record("prompt %d %s", senderID, field.Key)
	return nil
}

func (p *stubPresenter) ConfirmCreated(senderID int64, taskID int64) error {
	p.record("confirm %d #%d", senderID, taskID)
	return nil
}

func (p *stubPresenter) contains(substr string) bool {
	for _, call := range p.Calls() {
		if strings.Contains(call, substr) {
			return true
		}
	}
	return false
}
