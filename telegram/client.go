package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.telegram.org"

// Client is a thin Telegram Bot API client over plain HTTP. Only the methods
// this bot needs are implemented.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID       int64       `json:"message_id"`
	Date            int64       `json:"date,omitempty"`
	Chat            *Chat       `json:"chat,omitempty"`
	From            *User       `json:"from,omitempty"`
	MessageThreadID int64       `json:"message_thread_id,omitempty"`
	Text            string      `json:"text,omitempty"`
	Caption         string      `json:"caption,omitempty"`
	Photo           []PhotoSize `json:"photo,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type ChatMember struct {
	Status string `json:"status,omitempty"` // creator|administrator|member|...
	User   *User  `json:"user,omitempty"`
}

type ForumTopic struct {
	MessageThreadID int64  `json:"message_thread_id"`
	Name            string `json:"name,omitempty"`
	IconColor       int64  `json:"icon_color,omitempty"`
}

// DisplayName renders a user the way the bot shows people: first plus last
// name, falling back to @username.
func DisplayName(u *User) string {
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	username := strings.TrimSpace(u.Username)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case username != "":
		return "@" + username
	default:
		return ""
	}
}

// RequestError is a non-ok Bot API response.
type RequestError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram: <nil>"
	}
	return fmt.Sprintf("telegram http %d api %d: %s", e.StatusCode, e.ErrorCode, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// call posts the payload as JSON to one Bot API method and decodes result
// into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("telegram %s: encode: %w", method, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &RequestError{StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	if !decoded.OK {
		return &RequestError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   decoded.ErrorCode,
			Description: decoded.Description,
		}
	}
	if out != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls and returns the updates plus the next offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	err := c.call(reqCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// IsPollTimeout reports whether err is just the long poll running out.
func IsPollTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}

type sendMessageRequest struct {
	ChatID          int64           `json:"chat_id"`
	Text            string          `json:"text"`
	ParseMode       string          `json:"parse_mode,omitempty"`
	MessageThreadID int64           `json:"message_thread_id,omitempty"`
	ReplyMarkup     json.RawMessage `json:"reply_markup,omitempty"`
}

type SendOptions struct {
	ParseMode       string
	MessageThreadID int64
	ReplyMarkup     any
}

func marshalMarkup(markup any) (json.RawMessage, error) {
	if markup == nil {
		return nil, nil
	}
	data, err := json.Marshal(markup)
	if err != nil {
		return nil, fmt.Errorf("encode reply markup: %w", err)
	}
	return data, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*Message, error) {
	markup, err := marshalMarkup(opts.ReplyMarkup)
	if err != nil {
		return nil, err
	}
	var msg Message
	err = c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:          chatID,
		Text:            text,
		ParseMode:       opts.ParseMode,
		MessageThreadID: opts.MessageThreadID,
		ReplyMarkup:     markup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type sendPhotoRequest struct {
	ChatID          int64           `json:"chat_id"`
	Photo           string          `json:"photo"`
	Caption         string          `json:"caption,omitempty"`
	ParseMode       string          `json:"parse_mode,omitempty"`
	MessageThreadID int64           `json:"message_thread_id,omitempty"`
	ReplyMarkup     json.RawMessage `json:"reply_markup,omitempty"`
}

// SendPhoto re-sends a previously uploaded photo by file id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, opts SendOptions) (*Message, error) {
	markup, err := marshalMarkup(opts.ReplyMarkup)
	if err != nil {
		return nil, err
	}
	var msg Message
	err = c.call(ctx, "sendPhoto", sendPhotoRequest{
		ChatID:          chatID,
		Photo:           fileID,
		Caption:         caption,
		ParseMode:       opts.ParseMode,
		MessageThreadID: opts.MessageThreadID,
		ReplyMarkup:     markup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageTextRequest struct {
	ChatID      int64           `json:"chat_id"`
	MessageID   int64           `json:"message_id"`
	Text        string          `json:"text"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup json.RawMessage `json:"reply_markup,omitempty"`
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts SendOptions) error {
	markup, err := marshalMarkup(opts.ReplyMarkup)
	if err != nil {
		return err
	}
	return c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   opts.ParseMode,
		ReplyMarkup: markup,
	}, nil)
}

type editMessageCaptionRequest struct {
	ChatID      int64           `json:"chat_id"`
	MessageID   int64           `json:"message_id"`
	Caption     string          `json:"caption,omitempty"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup json.RawMessage `json:"reply_markup,omitempty"`
}

// EditMessageCaption edits photo posts, which carry their text as a caption.
func (c *Client) EditMessageCaption(ctx context.Context, chatID, messageID int64, caption string, opts SendOptions) error {
	markup, err := marshalMarkup(opts.ReplyMarkup)
	if err != nil {
		return err
	}
	return c.call(ctx, "editMessageCaption", editMessageCaptionRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Caption:     caption,
		ParseMode:   opts.ParseMode,
		ReplyMarkup: markup,
	}, nil)
}

type editMessageReplyMarkupRequest struct {
	ChatID      int64           `json:"chat_id"`
	MessageID   int64           `json:"message_id"`
	ReplyMarkup json.RawMessage `json:"reply_markup,omitempty"`
}

// ClearReplyMarkup removes the inline keyboard from a sent message.
func (c *Client) ClearReplyMarkup(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "editMessageReplyMarkup", editMessageReplyMarkupRequest{
		ChatID:    chatID,
		MessageID: messageID,
	}, nil)
}

type answerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	}, nil)
}

type createForumTopicRequest struct {
	ChatID    int64  `json:"chat_id"`
	Name      string `json:"name"`
	IconColor int64  `json:"icon_color,omitempty"`
}

func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string, iconColor int64) (*ForumTopic, error) {
	var topic ForumTopic
	err := c.call(ctx, "createForumTopic", createForumTopicRequest{
		ChatID:    chatID,
		Name:      name,
		IconColor: iconColor,
	}, &topic)
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

type forumTopicRequest struct {
	ChatID          int64  `json:"chat_id"`
	MessageThreadID int64  `json:"message_thread_id"`
	Name            string `json:"name,omitempty"`
}

func (c *Client) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	return c.call(ctx, "editForumTopic", forumTopicRequest{
		ChatID:          chatID,
		MessageThreadID: threadID,
		Name:            name,
	}, nil)
}

func (c *Client) CloseForumTopic(ctx context.Context, chatID, threadID int64) error {
	return c.call(ctx, "closeForumTopic", forumTopicRequest{
		ChatID:          chatID,
		MessageThreadID: threadID,
	}, nil)
}

func (c *Client) ReopenForumTopic(ctx context.Context, chatID, threadID int64) error {
	return c.call(ctx, "reopenForumTopic", forumTopicRequest{
		ChatID:          chatID,
		MessageThreadID: threadID,
	}, nil)
}

type getChatRequest struct {
	ChatID int64 `json:"chat_id"`
}

func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat Chat
	if err := c.call(ctx, "getChat", getChatRequest{ChatID: chatID}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

type getChatMemberRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	var member ChatMember
	err := c.call(ctx, "getChatMember", getChatMemberRequest{ChatID: chatID, UserID: userID}, &member)
	if err != nil {
		return nil, err
	}
	return &member, nil
}
