package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nnthruslpn/telegram-bot/dispatch"
)

// EventSink is the slice of the dispatcher the runtime needs.
type EventSink interface {
	Do(ctx context.Context, event dispatch.Event) error
}

// Runtime long-polls Telegram and translates updates into dispatch events.
// All routing decisions (allow-lists, callback parsing) happen here, before
// anything reaches the state machine.
type Runtime struct {
	client      *Client
	sink        EventSink
	infoChatID  int64
	senderIDs   map[int64]struct{}
	receiverIDs map[int64]struct{}
	pollTimeout time.Duration
	logger      *slog.Logger
}

type RuntimeOptions struct {
	Client      *Client
	Sink        EventSink
	InfoChatID  int64
	SenderIDs   []int64
	ReceiverIDs []int64
	PollTimeout time.Duration
	Logger      *slog.Logger
}

func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if opts.Client == nil {
		return nil, errors.New("telegram: runtime needs a client")
	}
	if opts.Sink == nil {
		return nil, errors.New("telegram: runtime needs an event sink")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runtime{
		client:      opts.Client,
		sink:        opts.Sink,
		infoChatID:  opts.InfoChatID,
		senderIDs:   idSet(opts.SenderIDs),
		receiverIDs: idSet(opts.ReceiverIDs),
		pollTimeout: timeout,
		logger:      logger,
	}, nil
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (r *Runtime) isSender(id int64) bool {
	_, ok := r.senderIDs[id]
	return ok
}

// IsAdmin backs the "admins" authorization policy with a chat member lookup.
// Lookup failures deny, they never grant.
func (r *Runtime) IsAdmin(participantID int64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()
	member, err := r.client.GetChatMember(ctx, r.infoChatID, participantID)
	if err != nil {
		r.logger.Warn("admin_lookup_failed", "participant_id", participantID, "error", err.Error())
		return false
	}
	return member.Status == "creator" || member.Status == "administrator"
}

// Run polls until ctx is canceled. Transient poll errors back off and retry;
// only ctx cancellation stops the loop.
func (r *Runtime) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, next, err := r.client.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !IsPollTimeout(err) {
				r.logger.Warn("poll_error", "error", err.Error())
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(3 * time.Second):
				}
			}
			continue
		}
		offset = next
		for _, update := range updates {
			r.handleUpdate(ctx, update)
		}
	}
}

func (r *Runtime) handleUpdate(ctx context.Context, update Update) {
	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	}
}

func (r *Runtime) handleMessage(ctx context.Context, msg *Message) {
	if msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return
	}
	if msg.Chat.Type != "private" {
		return
	}
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	if text == "/start" {
		r.greet(ctx, msg.Chat.ID, userID)
		return
	}
	if !r.isSender(userID) {
		return
	}
	if text == ButtonCreateTask {
		if err := r.sink.Do(ctx, dispatch.StartDraft{SenderID: userID}); err != nil {
			r.logger.Error("event_failed", "event", "start_draft", "sender_id", userID, "error", err.Error())
		}
		return
	}

	input, ok := fieldInputFromMessage(msg)
	if !ok {
		return
	}
	err := r.sink.Do(ctx, dispatch.SubmitField{
		SenderID:   userID,
		SenderName: DisplayName(msg.From),
		Input:      input,
	})
	if err != nil {
		r.logger.Error("event_failed", "event", "submit_field", "sender_id", userID, "error", err.Error())
	}
}

// fieldInputFromMessage extracts intake input; photos use the largest size.
func fieldInputFromMessage(msg *Message) (dispatch.FieldInput, bool) {
	if len(msg.Photo) > 0 {
		return dispatch.FieldInput{PhotoFileID: msg.Photo[len(msg.Photo)-1].FileID}, true
	}
	if text := strings.TrimSpace(msg.Text); text != "" {
		return dispatch.FieldInput{Text: text}, true
	}
	return dispatch.FieldInput{}, false
}

func (r *Runtime) greet(ctx context.Context, chatID, userID int64) {
	var err error
	if r.isSender(userID) {
		_, err = r.client.SendMessage(ctx, chatID,
			"Привет! Нажмите кнопку, чтобы начать создание задачи.",
			SendOptions{ReplyMarkup: StartKeyboard()})
	} else {
		_, err = r.client.SendMessage(ctx, chatID,
			"Добро пожаловать! Здесь вы можете получать и принимать задачи.",
			SendOptions{ReplyMarkup: ReplyKeyboardRemove{RemoveKeyboard: true}})
	}
	if err != nil {
		r.logger.Error("transport_error", "op", "greet", "chat_id", chatID, "error", err.Error())
	}
}

func (r *Runtime) handleCallback(ctx context.Context, query *CallbackQuery) {
	if query.From == nil {
		return
	}
	cb, err := ParseCallback(query.Data)
	if err != nil {
		r.logger.Warn("callback_rejected", "data", query.Data, "error", err.Error())
		r.answer(ctx, query.ID, "Ошибка обработки запроса")
		return
	}

	actor := dispatch.Actor{ID: query.From.ID, Name: DisplayName(query.From)}
	switch cb.Kind {
	case CallbackSkip:
		r.handleSkip(ctx, query, actor)
	case CallbackResponse:
		r.handleResponse(ctx, query, actor, cb)
	case CallbackThreadAction:
		r.handleThreadAction(ctx, query, actor, cb)
	}
}

func (r *Runtime) handleSkip(ctx context.Context, query *CallbackQuery, actor dispatch.Actor) {
	err := r.sink.Do(ctx, dispatch.SubmitField{
		SenderID:   actor.ID,
		SenderName: actor.Name,
		Input:      dispatch.FieldInput{Skip: true},
	})
	if err != nil {
		r.logger.Error("event_failed", "event", "submit_field_skip", "sender_id", actor.ID, "error", err.Error())
		r.answer(ctx, query.ID, "Ошибка обработки запроса")
		return
	}
	r.answer(ctx, query.ID, "Шаг с фото пропущен")
	r.clearMarkup(ctx, query)
}

func (r *Runtime) handleResponse(ctx context.Context, query *CallbackQuery, actor dispatch.Actor, cb Callback) {
	err := r.sink.Do(ctx, dispatch.SubmitResponse{
		TaskID: cb.TaskID,
		Actor:  actor,
		Kind:   cb.Response,
	})
	if err != nil {
		r.answer(ctx, query.ID, ackForError(err))
		return
	}
	r.answer(ctx, query.ID, "Статус обновлен: "+cb.Response.Label())
	// One answer per receiver: drop the keyboard from their copy.
	r.clearMarkup(ctx, query)
}

func (r *Runtime) handleThreadAction(ctx context.Context, query *CallbackQuery, actor dispatch.Actor, cb Callback) {
	err := r.sink.Do(ctx, dispatch.ThreadAction{
		TaskID: cb.TaskID,
		Actor:  actor,
		Action: cb.Action,
	})
	if err != nil {
		r.answer(ctx, query.ID, ackForError(err))
		return
	}
	r.answer(ctx, query.ID, "Статус обновлен!")
}

// ackForError maps domain errors to the short toasts users see.
func ackForError(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrTaskNotFound):
		return "Задача не найдена!"
	case errors.Is(err, dispatch.ErrAlreadyResolved):
		return "Задача уже решена!"
	case errors.Is(err, dispatch.ErrAlreadyOpen):
		return "Задача уже открыта!"
	case errors.Is(err, dispatch.ErrUnauthorized):
		return "Недостаточно прав"
	default:
		return "Ошибка обработки запроса"
	}
}

func (r *Runtime) answer(ctx context.Context, callbackID, text string) {
	if err := r.client.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		r.logger.Warn("transport_error", "op", "answer_callback", "error", err.Error())
	}
}

func (r *Runtime) clearMarkup(ctx context.Context, query *CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	err := r.client.ClearReplyMarkup(ctx, query.Message.Chat.ID, query.Message.MessageID)
	if err != nil {
		r.logger.Warn("transport_error", "op", "clear_markup", "error", err.Error())
	}
}
