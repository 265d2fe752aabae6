package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/moderation"
)

const (
	testChatID       int64 = -100
	readOnlyChatID   int64 = -200
	testAuditChatID  int64 = -300
	testBotID        int64 = 42
	testSentMessage        = 777
	notEnoughRights        = `{"ok":false,"error_code":400,"description":"Bad Request: not enough rights to restrict/unrestrict chat member"}`
	messageNotFound        = `{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`
)

type apiCall struct {
	method string
	form   url.Values
}

type telegramServer struct {
	mu    sync.Mutex
	calls []apiCall
}

func (s *telegramServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := path.Base(r.URL.Path)
	if method != "getMe" {
		s.mu.Lock()
		s.calls = append(s.calls, apiCall{method: method, form: r.Form})
		s.mu.Unlock()
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case method == "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"ngmod","username":"ngmod_bot"}}`))
	case method == "sendMessage":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":777,"date":1700000000,"chat":{"id":-100,"type":"supergroup"}}}`))
	case method == "banChatMember" && r.Form.Get("chat_id") == strconv.FormatInt(readOnlyChatID, 10):
		_, _ = w.Write([]byte(notEnoughRights))
	case method == "deleteMessage" && r.Form.Get("message_id") == "404":
		_, _ = w.Write([]byte(messageNotFound))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func (s *telegramServer) last(t *testing.T) apiCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		t.Fatalf("no api calls recorded")
	}
	return s.calls[len(s.calls)-1]
}

func (s *telegramServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestExecutor(t *testing.T, auditChatID int64) (*Executor, *telegramServer) {
	t.Helper()

	srv := &telegramServer{}
	httpServer := httptest.NewServer(srv)
	t.Cleanup(httpServer.Close)

	botAPI, err := api.NewBotAPIWithClient("TEST-TOKEN", httpServer.URL+"/bot%s/%s", httpServer.Client())
	if err != nil {
		t.Fatalf("new bot api: %v", err)
	}
	if botAPI.Self.ID != testBotID {
		t.Fatalf("unexpected bot id %d", botAPI.Self.ID)
	}
	return NewExecutor(botAPI, 2*time.Second, auditChatID), srv
}

func TestExecutorDeleteMessage(t *testing.T) {
	t.Parallel()

	exec, srv := newTestExecutor(t, 0)
	res := exec.Execute(context.Background(), moderation.DeleteMessage{ChatID: testChatID, MessageID: 5})
	if !res.OK() {
		t.Fatalf("delete failed: %v", res.Err)
	}
	call := srv.last(t)
	if call.method != "deleteMessage" {
		t.Fatalf("unexpected method %q", call.method)
	}
	if call.form.Get("chat_id") != "-100" || call.form.Get("message_id") != "5" {
		t.Fatalf("unexpected params %v", call.form)
	}
}

func TestExecutorDeleteFailureIsPlatformError(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t, 0)
	res := exec.Execute(context.Background(), moderation.DeleteMessage{ChatID: testChatID, MessageID: 404})
	if res.OK() {
		t.Fatalf("expected delete failure")
	}
	if !errors.Is(res.Err, ngerrors.ErrPlatformAction) {
		t.Fatalf("expected platform error, got %v", res.Err)
	}
	if errors.Is(res.Err, ngerrors.ErrInsufficientPrivilege) {
		t.Fatalf("missing message must not look like a privilege problem")
	}
}

func TestExecutorSendMessage(t *testing.T) {
	t.Parallel()

	exec, srv := newTestExecutor(t, 0)
	res := exec.Execute(context.Background(), moderation.SendMessage{
		ChatID:   testChatID,
		ThreadID: 9,
		Text:     "<b>hello</b>",
		ReplyTo:  12,
	})
	if !res.OK() {
		t.Fatalf("send failed: %v", res.Err)
	}
	if res.MessageID != testSentMessage {
		t.Fatalf("expected message id %d, got %d", testSentMessage, res.MessageID)
	}

	call := srv.last(t)
	if call.method != "sendMessage" {
		t.Fatalf("unexpected method %q", call.method)
	}
	if got := call.form.Get("text"); got != "<b>hello</b>" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := call.form.Get("parse_mode"); got != api.ModeHTML {
		t.Fatalf("unexpected parse mode %q", got)
	}
	if got := call.form.Get("message_thread_id"); got != "9" {
		t.Fatalf("unexpected thread id %q", got)
	}
	if call.form.Get("reply_parameters") == "" {
		t.Fatalf("expected reply parameters to be sent")
	}
}

func TestExecutorBanRequestMapping(t *testing.T) {
	t.Parallel()

	exec, srv := newTestExecutor(t, 0)
	until := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	res := exec.Execute(context.Background(), moderation.BanUser{ChatID: testChatID, UserID: 7, Until: &until})
	if !res.OK() {
		t.Fatalf("ban failed: %v", res.Err)
	}
	call := srv.last(t)
	if call.method != "banChatMember" {
		t.Fatalf("unexpected method %q", call.method)
	}
	if call.form.Get("user_id") != "7" {
		t.Fatalf("unexpected user id %q", call.form.Get("user_id"))
	}
	if got := call.form.Get("until_date"); got != strconv.FormatInt(until.Unix(), 10) {
		t.Fatalf("unexpected until date %q", got)
	}
	if got := call.form.Get("revoke_messages"); got == "true" {
		t.Fatalf("ban must keep the member's message history, got revoke_messages=%q", got)
	}

	res = exec.Execute(context.Background(), moderation.BanUser{ChatID: testChatID, UserID: 7})
	if !res.OK() {
		t.Fatalf("permanent ban failed: %v", res.Err)
	}
	if got := srv.last(t).form.Get("until_date"); got != "" {
		t.Fatalf("permanent ban must not carry an until date, got %q", got)
	}
}

func TestExecutorMapsMissingRights(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t, 0)
	res := exec.Execute(context.Background(), moderation.BanUser{ChatID: readOnlyChatID, UserID: 7})
	if !errors.Is(res.Err, ngerrors.ErrInsufficientPrivilege) {
		t.Fatalf("expected insufficient privilege, got %v", res.Err)
	}
}

func TestExecutorUnbanOnlyIfBanned(t *testing.T) {
	t.Parallel()

	exec, srv := newTestExecutor(t, 0)
	res := exec.Execute(context.Background(), moderation.UnbanUser{ChatID: testChatID, UserID: 7})
	if !res.OK() {
		t.Fatalf("unban failed: %v", res.Err)
	}
	call := srv.last(t)
	if call.method != "unbanChatMember" {
		t.Fatalf("unexpected method %q", call.method)
	}
	if call.form.Get("only_if_banned") != "true" {
		t.Fatalf("unban must not kick members that are not banned")
	}
}

func TestExecutorAuditLog(t *testing.T) {
	t.Parallel()

	disabled, srv := newTestExecutor(t, 0)
	if res := disabled.Execute(context.Background(), moderation.AuditLog{Text: "line"}); !res.OK() {
		t.Fatalf("disabled audit must succeed: %v", res.Err)
	}
	if srv.count() != 0 {
		t.Fatalf("disabled audit must not call the api")
	}

	enabled, srv := newTestExecutor(t, testAuditChatID)
	if res := enabled.Execute(context.Background(), moderation.AuditLog{Text: "user <1>"}); !res.OK() {
		t.Fatalf("audit failed: %v", res.Err)
	}
	call := srv.last(t)
	if call.form.Get("chat_id") != strconv.FormatInt(testAuditChatID, 10) {
		t.Fatalf("audit went to %q", call.form.Get("chat_id"))
	}
	if call.form.Get("parse_mode") != "" {
		t.Fatalf("audit lines are plain text")
	}
}

type blockingRequester struct {
	release chan struct{}
}

func (b blockingRequester) Request(api.Chattable) (*api.APIResponse, error) {
	<-b.release
	return &api.APIResponse{Ok: true}, nil
}

func (b blockingRequester) Send(api.Chattable) (api.Message, error) {
	<-b.release
	return api.Message{}, nil
}

func TestExecutorHonoursActionTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	exec := NewExecutor(blockingRequester{release: release}, 20*time.Millisecond, 0)

	started := time.Now()
	res := exec.Execute(context.Background(), moderation.DeleteMessage{ChatID: testChatID, MessageID: 1})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", res.Err)
	}
	if !errors.Is(res.Err, ngerrors.ErrPlatformAction) {
		t.Fatalf("timeout must be reported as a platform failure, got %v", res.Err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("timeout not honoured, took %v", elapsed)
	}
}

func TestExecutorRejectsUnknownDirective(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(blockingRequester{}, time.Second, 0)
	res := exec.Execute(context.Background(), nil)
	if !errors.Is(res.Err, ngerrors.ErrPlatformAction) {
		t.Fatalf("expected platform error, got %v", res.Err)
	}
}
