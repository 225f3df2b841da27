package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nnthruslpn/telegram-bot/dispatch"
)

const defaultCallTimeout = 15 * time.Second

// Presenter renders task state into one Telegram forum supergroup plus the
// participants' private chats. It implements dispatch.Presenter.
type Presenter struct {
	client      *Client
	infoChatID  int64
	roster      *Roster
	logger      *slog.Logger
	callTimeout time.Duration
}

type PresenterOptions struct {
	Client      *Client
	InfoChatID  int64
	Roster      *Roster
	Logger      *slog.Logger
	CallTimeout time.Duration
}

func NewPresenter(opts PresenterOptions) (*Presenter, error) {
	if opts.Client == nil {
		return nil, errors.New("telegram: presenter needs a client")
	}
	if opts.InfoChatID == 0 {
		return nil, errors.New("telegram: presenter needs an info chat id")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Presenter{
		client:      opts.Client,
		infoChatID:  opts.InfoChatID,
		roster:      opts.Roster,
		logger:      logger,
		callTimeout: timeout,
	}, nil
}

func (p *Presenter) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.callTimeout)
}

// sendRendered posts the task body to one chat. Photo tasks travel as a photo
// with a caption so the attachment stays attached to the status text.
func (p *Presenter) sendRendered(ctx context.Context, chatID int64, task dispatch.Task, withStatus bool, opts SendOptions) (*Message, error) {
	text := RenderTask(&task, withStatus)
	opts.ParseMode = "Markdown"

	var (
		msg *Message
		err error
	)
	if photo := task.Photo(); photo != "" {
		msg, err = p.client.SendPhoto(ctx, chatID, photo, text, opts)
	} else {
		msg, err = p.client.SendMessage(ctx, chatID, text, opts)
	}
	if isParseError(err) {
		// Markdown can choke on user text; retry plain rather than drop.
		opts.ParseMode = ""
		if photo := task.Photo(); photo != "" {
			return p.client.SendPhoto(ctx, chatID, photo, text, opts)
		}
		return p.client.SendMessage(ctx, chatID, text, opts)
	}
	return msg, err
}

func (p *Presenter) editRendered(ctx context.Context, messageID int64, task dispatch.Task, markup *InlineKeyboardMarkup) error {
	text := RenderTask(&task, true)
	opts := SendOptions{ParseMode: "Markdown"}
	if markup != nil {
		opts.ReplyMarkup = markup
	}

	var err error
	if task.Photo() != "" {
		err = p.client.EditMessageCaption(ctx, p.infoChatID, messageID, text, opts)
	} else {
		err = p.client.EditMessageText(ctx, p.infoChatID, messageID, text, opts)
	}
	if isParseError(err) {
		opts.ParseMode = ""
		if task.Photo() != "" {
			return p.client.EditMessageCaption(ctx, p.infoChatID, messageID, text, opts)
		}
		return p.client.EditMessageText(ctx, p.infoChatID, messageID, text, opts)
	}
	return err
}

func isParseError(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.ErrorCode == 400 && strings.Contains(strings.ToLower(reqErr.Description), "parse")
}

func (p *Presenter) PublishSummary(task dispatch.Task) (dispatch.MessageRef, error) {
	ctx, cancel := p.callCtx()
	defer cancel()
	msg, err := p.sendRendered(ctx, p.infoChatID, task, false, SendOptions{})
	if err != nil {
		return 0, fmt.Errorf("publish summary: %w", err)
	}
	return msg.MessageID, nil
}

func (p *Presenter) UpdateSummary(ref dispatch.MessageRef, task dispatch.Task) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	if err := p.editRendered(ctx, ref, task, nil); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

func (p *Presenter) PublishThreadRoot(task dispatch.Task) (dispatch.ThreadRef, dispatch.MessageRef, error) {
	ctx, cancel := p.callCtx()
	defer cancel()

	topic, err := p.client.CreateForumTopic(ctx, p.infoChatID, task.TopicTitle(), dispatch.TopicIconColor)
	if err != nil {
		return 0, 0, fmt.Errorf("create forum topic: %w", err)
	}

	msg, err := p.sendRendered(ctx, p.infoChatID, task, false, SendOptions{
		MessageThreadID: topic.MessageThreadID,
		ReplyMarkup:     TopicControls(task.ID, task.Resolved()),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("post thread root: %w", err)
	}
	return topic.MessageThreadID, msg.MessageID, nil
}

// UpdateThreadRoot edits the thread's status message; the edit addresses the
// message id directly, the thread ref is not needed.
func (p *Presenter) UpdateThreadRoot(_ dispatch.ThreadRef, msg dispatch.MessageRef, task dispatch.Task) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	if err := p.editRendered(ctx, msg, task, TopicControls(task.ID, task.Resolved())); err != nil {
		return fmt.Errorf("update thread root: %w", err)
	}
	return nil
}

func (p *Presenter) RenameThread(thread dispatch.ThreadRef, title string) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	if err := p.client.EditForumTopic(ctx, p.infoChatID, thread, title); err != nil {
		return fmt.Errorf("rename thread: %w", err)
	}
	return nil
}

func (p *Presenter) CloseThread(thread dispatch.ThreadRef) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	if err := p.client.CloseForumTopic(ctx, p.infoChatID, thread); err != nil {
		return fmt.Errorf("close thread: %w", err)
	}
	return nil
}

func (p *Presenter) ReopenThread(thread dispatch.ThreadRef) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	if err := p.client.ReopenForumTopic(ctx, p.infoChatID, thread); err != nil {
		return fmt.Errorf("reopen thread: %w", err)
	}
	return nil
}

func (p *Presenter) BroadcastTask(participantID int64, task dispatch.Task) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	_, err := p.sendRendered(ctx, participantID, task, false, SendOptions{
		ReplyMarkup: ResponseKeyboard(task.ID),
	})
	if err != nil {
		return fmt.Errorf("broadcast to %d: %w", participantID, err)
	}
	return nil
}

func (p *Presenter) NotifyParticipant(participantID int64, text string) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	if _, err := p.client.SendMessage(ctx, participantID, text, SendOptions{}); err != nil {
		return fmt.Errorf("notify %d: %w", participantID, err)
	}
	return nil
}

func (p *Presenter) PostVenueNotice(text string) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	if _, err := p.client.SendMessage(ctx, p.infoChatID, text, SendOptions{}); err != nil {
		return fmt.Errorf("post venue notice: %w", err)
	}
	return nil
}

// ResolveDisplayName checks the local roster first and only then asks the
// venue for the chat member.
func (p *Presenter) ResolveDisplayName(participantID int64) (string, error) {
	if name, ok := p.roster.Name(participantID); ok {
		return name, nil
	}

	ctx, cancel := p.callCtx()
	defer cancel()
	member, err := p.client.GetChatMember(ctx, p.infoChatID, participantID)
	if err != nil {
		return "", fmt.Errorf("resolve name for %d: %w", participantID, err)
	}
	name := memberDisplayName(member.User)
	if name == "" {
		return "", fmt.Errorf("no display name for %d", participantID)
	}
	return name, nil
}

// memberDisplayName appends the @username so escalation readers can ping the
// person directly.
func memberDisplayName(u *User) string {
	if u == nil {
		return ""
	}
	name := DisplayName(u)
	if username := strings.TrimSpace(u.Username); username != "" && !strings.HasPrefix(name, "@") {
		name += fmt.Sprintf(" (@%s)", username)
	}
	return name
}

func (p *Presenter) PromptField(senderID int64, field dispatch.FieldSpec) error {
	ctx, cancel := p.callCtx()
	defer cancel()

	opts := SendOptions{}
	if field.AllowSkip {
		opts.ReplyMarkup = SkipKeyboard()
	}
	first := len(dispatch.TaskFields) > 0 && field.Key == dispatch.TaskFields[0].Key
	if _, err := p.client.SendMessage(ctx, senderID, FieldPrompt(field, first), opts); err != nil {
		return fmt.Errorf("prompt field %s: %w", field.Key, err)
	}
	return nil
}

func (p *Presenter) ConfirmCreated(senderID int64, taskID int64) error {
	ctx, cancel := p.callCtx()
	defer cancel()
	text := fmt.Sprintf("✅ Задача #%d успешно создана!", taskID)
	if _, err := p.client.SendMessage(ctx, senderID, text, SendOptions{ReplyMarkup: ReplyKeyboardRemove{RemoveKeyboard: true}}); err != nil {
		return fmt.Errorf("confirm created: %w", err)
	}
	return nil
}

var _ dispatch.Presenter = (*Presenter)(nil)
