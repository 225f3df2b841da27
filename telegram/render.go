package telegram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nnthruslpn/telegram-bot/dispatch"
)

// Inline keyboard wire types, trimmed to what the bot sends.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

type ReplyKeyboardMarkup struct {
	Keyboard        [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
}

type KeyboardButton struct {
	Text string `json:"text"`
}

type ReplyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

// Callback data wire prefixes. Receiver responses travel as
// "user_<kind>:<task>", thread controls as "forum_<action>:<task>", and the
// photo skip button as a bare "skip_step".
const (
	callbackUserPrefix  = "user_"
	callbackForumPrefix = "forum_"
	CallbackSkipStep    = "skip_step"
)

type CallbackKind int

const (
	CallbackUnknown CallbackKind = iota
	CallbackSkip
	CallbackResponse
	CallbackThreadAction
)

// Callback is one parsed inline button press. Parsing happens here, at the
// transport edge; nothing downstream ever splits the raw data string again.
type Callback struct {
	Kind     CallbackKind
	TaskID   int64
	Response dispatch.ResponseKind
	Action   dispatch.Action
}

func EncodeResponseCallback(kind dispatch.ResponseKind, taskID int64) string {
	return fmt.Sprintf("%s%s:%d", callbackUserPrefix, kind, taskID)
}

func EncodeThreadCallback(action dispatch.Action, taskID int64) string {
	return fmt.Sprintf("%s%s:%d", callbackForumPrefix, action, taskID)
}

// ParseCallback decodes button data into a tagged Callback. Unknown or
// malformed data returns an error so the caller can ack and drop it.
func ParseCallback(data string) (Callback, error) {
	data = strings.TrimSpace(data)
	if data == CallbackSkipStep {
		return Callback{Kind: CallbackSkip}, nil
	}

	head, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return Callback{}, fmt.Errorf("malformed callback data %q", data)
	}
	taskID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || taskID <= 0 {
		return Callback{}, fmt.Errorf("bad task id in callback data %q", data)
	}

	switch {
	case strings.HasPrefix(head, callbackUserPrefix):
		kind := dispatch.ResponseKind(strings.TrimPrefix(head, callbackUserPrefix))
		if !kind.Valid() {
			return Callback{}, fmt.Errorf("unknown response kind in callback data %q", data)
		}
		return Callback{Kind: CallbackResponse, TaskID: taskID, Response: kind}, nil
	case strings.HasPrefix(head, callbackForumPrefix):
		action := dispatch.Action(strings.TrimPrefix(head, callbackForumPrefix))
		if !action.Valid() {
			return Callback{}, fmt.Errorf("unknown thread action in callback data %q", data)
		}
		return Callback{Kind: CallbackThreadAction, TaskID: taskID, Action: action}, nil
	default:
		return Callback{}, fmt.Errorf("unknown callback data %q", data)
	}
}

var fieldLines = []struct {
	key   dispatch.FieldKey
	label string
}{
	{dispatch.FieldClientName, "📌 Клиент"},
	{dispatch.FieldUrgency, "⚠️ Срочность"},
	{dispatch.FieldWhatToDo, "📝 Задача"},
	{dispatch.FieldGoal, "🎯 Цель"},
	{dispatch.FieldClientPP, "📄 ПП клиента"},
	{dispatch.FieldEquipment, "⚙️ Оборудование"},
	{dispatch.FieldCostAndHours, "💰 Сумма/часы"},
	{dispatch.FieldContactPerson, "📞 Контакты"},
}

// RenderTask builds the Markdown body shared by the summary message and the
// thread root. withStatus appends the per-receiver response block.
func RenderTask(task *dispatch.Task, withStatus bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Задача #%d*\n", task.ID)
	fmt.Fprintf(&b, "👤 Отправитель: %s", task.SenderName)
	for _, line := range fieldLines {
		fmt.Fprintf(&b, "\n%s: %s", line.label, task.Fields[line.key])
	}

	if !withStatus {
		return b.String()
	}

	if taken := strings.TrimSpace(task.TakenBy); taken != "" {
		fmt.Fprintf(&b, "\n\n🟡 В работе: %s", taken)
	}
	if len(task.Responses) > 0 {
		b.WriteString("\n\n*Статусы ответов:*")
		for _, r := range sortedResponses(task) {
			fmt.Fprintf(&b, "\n• %s — %s", r.Name, r.Kind.Label())
		}
	}
	return b.String()
}

func sortedResponses(task *dispatch.Task) []dispatch.Response {
	out := make([]dispatch.Response, 0, len(task.Responses))
	for _, r := range task.Responses {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResponseKeyboard is attached to each receiver's personal broadcast copy.
func ResponseKeyboard(taskID int64) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{{Text: "Беру задачу", CallbackData: EncodeResponseCallback(dispatch.ResponseWillTake, taskID)}},
		{{Text: "Не уверен, нужны уточнения", CallbackData: EncodeResponseCallback(dispatch.ResponseNeedsClarification, taskID)}},
		{{Text: "Не могу взять", CallbackData: EncodeResponseCallback(dispatch.ResponseCannotTake, taskID)}},
	}}
}

// TopicControls is attached to the thread root and flips with resolution
// state: open tasks offer resolve and take, resolved tasks offer reopen.
func TopicControls(taskID int64, resolved bool) *InlineKeyboardMarkup {
	if resolved {
		return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
			{{Text: "🔴 Вернуть в работу", CallbackData: EncodeThreadCallback(dispatch.ActionReopen, taskID)}},
		}}
	}
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{{Text: "🟢 Решено", CallbackData: EncodeThreadCallback(dispatch.ActionResolve, taskID)}},
		{{Text: "🟡 Взять в работу", CallbackData: EncodeThreadCallback(dispatch.ActionTake, taskID)}},
	}}
}

func SkipKeyboard() *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{{Text: "Пропустить шаг", CallbackData: CallbackSkipStep}},
	}}
}

// StartKeyboard is the reply keyboard offered to authorized senders in
// private chat.
func StartKeyboard() *ReplyKeyboardMarkup {
	return &ReplyKeyboardMarkup{
		Keyboard:        [][]KeyboardButton{{{Text: ButtonCreateTask}}},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

const ButtonCreateTask = "Создать задачу"

// FieldPrompt is the message asking the sender for the next form field. Later
// prompts carry the field label verbatim; only the opening prompt reads as a
// sentence.
func FieldPrompt(field dispatch.FieldSpec, first bool) string {
	if first {
		return fmt.Sprintf("Отправьте %s.", lowerFirst(field.Prompt))
	}
	return fmt.Sprintf("Теперь отправьте %s.", field.Prompt)
}

func lowerFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = []rune(strings.ToLower(string(runes[0])))[0]
	return string(runes)
}
