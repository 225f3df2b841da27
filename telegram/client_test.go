package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeAPI records Bot API calls and serves canned responses per method.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]string
}

type apiCall struct {
	method  string
	payload map[string]any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{responses: map[string]string{}}
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Path shape: /bot<token>/<method>
		method := r.URL.Path[len("/bottest-token/"):]
		var payload map[string]any
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Errorf("request to %s is not JSON: %v", method, err)
			}
		}
		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: method, payload: payload})
		resp, ok := f.responses[method]
		f.mu.Unlock()
		if !ok {
			resp = `{"ok":true,"result":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, resp)
	}
}

func (f *fakeAPI) lastCall(method string) (apiCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i], true
		}
	}
	return apiCall{}, false
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "test-token")
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	api := newFakeAPI()
	api.responses["getUpdates"] = `{"ok":true,"result":[
		{"update_id":41,"message":{"message_id":1,"chat":{"id":100,"type":"private"},"from":{"id":100,"first_name":"Иван"},"text":"привет"}},
		{"update_id":42,"callback_query":{"id":"cb1","from":{"id":201,"first_name":"Анна"},"data":"user_take:3"}}
	]}`
	client := newTestClient(t, api)

	updates, next, err := client.GetUpdates(context.Background(), 40, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if next != 43 {
		t.Fatalf("next offset = %d, want 43", next)
	}
	if updates[0].Message == nil || updates[0].Message.Text != "привет" {
		t.Fatalf("update[0] = %#v", updates[0])
	}
	if updates[1].CallbackQuery == nil || updates[1].CallbackQuery.Data != "user_take:3" {
		t.Fatalf("update[1] = %#v", updates[1])
	}

	call, ok := api.lastCall("getUpdates")
	if !ok {
		t.Fatal("getUpdates was not called")
	}
	if call.payload["offset"] != float64(40) {
		t.Fatalf("offset sent = %v, want 40", call.payload["offset"])
	}
}

func TestSendMessageCarriesThreadAndMarkup(t *testing.T) {
	api := newFakeAPI()
	api.responses["sendMessage"] = `{"ok":true,"result":{"message_id":77,"chat":{"id":-100,"type":"supergroup"}}}`
	client := newTestClient(t, api)

	msg, err := client.SendMessage(context.Background(), -100, "текст", SendOptions{
		ParseMode:       "Markdown",
		MessageThreadID: 555,
		ReplyMarkup:     SkipKeyboard(),
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.MessageID != 77 {
		t.Fatalf("message id = %d, want 77", msg.MessageID)
	}

	call, _ := api.lastCall("sendMessage")
	if call.payload["message_thread_id"] != float64(555) {
		t.Fatalf("thread id sent = %v", call.payload["message_thread_id"])
	}
	if call.payload["parse_mode"] != "Markdown" {
		t.Fatalf("parse mode sent = %v", call.payload["parse_mode"])
	}
	if _, ok := call.payload["reply_markup"]; !ok {
		t.Fatal("reply_markup missing from payload")
	}
}

func TestAPIErrorSurfacesCodeAndDescription(t *testing.T) {
	api := newFakeAPI()
	api.responses["sendMessage"] = `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	client := newTestClient(t, api)

	_, err := client.SendMessage(context.Background(), 100, "текст", SendOptions{})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.ErrorCode != 403 {
		t.Fatalf("error code = %d, want 403", reqErr.ErrorCode)
	}
	if reqErr.Description != "Forbidden: bot was blocked by the user" {
		t.Fatalf("description = %q", reqErr.Description)
	}
}

func TestCreateForumTopicDecodesThread(t *testing.T) {
	api := newFakeAPI()
	api.responses["createForumTopic"] = `{"ok":true,"result":{"message_thread_id":901,"name":"🔴 3 Ромашка"}}`
	client := newTestClient(t, api)

	topic, err := client.CreateForumTopic(context.Background(), -100, "🔴 3 Ромашка", 7322096)
	if err != nil {
		t.Fatalf("CreateForumTopic() error = %v", err)
	}
	if topic.MessageThreadID != 901 {
		t.Fatalf("thread id = %d, want 901", topic.MessageThreadID)
	}

	call, _ := api.lastCall("createForumTopic")
	if call.payload["icon_color"] != float64(7322096) {
		t.Fatalf("icon color sent = %v", call.payload["icon_color"])
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user *User
		want string
	}{
		{&User{FirstName: "Иван", LastName: "Петров"}, "Иван Петров"},
		{&User{FirstName: "Иван"}, "Иван"},
		{&User{Username: "ivan"}, "@ivan"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.user); got != tc.want {
			t.Errorf("DisplayName(%#v) = %q, want %q", tc.user, got, tc.want)
		}
	}
}
