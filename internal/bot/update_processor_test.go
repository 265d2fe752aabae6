package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngmod/internal/moderation"
)

type recordingHandler struct {
	seen    []*Inbound
	proceed bool
	err     error
}

func (h *recordingHandler) Handle(_ context.Context, in *Inbound) (bool, error) {
	h.seen = append(h.seen, in)
	return h.proceed, h.err
}

var processorNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestProcessor(handlers ...Handler) *UpdateProcessor {
	up := NewUpdateProcessor("ngmod_bot", handlers...)
	up.now = func() time.Time { return processorNow }
	return up
}

func commandMessage(text string, commandLength int) *api.Message {
	return &api.Message{
		MessageID: 3,
		Date:      int(processorNow.Unix()),
		Chat:      api.Chat{ID: testChatID, Type: "supergroup"},
		From:      &api.User{ID: adminID, FirstName: "Ada"},
		Text:      text,
		Entities:  []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: commandLength}},
	}
}

func TestMessageFromAPI(t *testing.T) {
	t.Parallel()

	msg := &api.Message{
		MessageID:       11,
		MessageThreadID: 4,
		Chat:            api.Chat{ID: testChatID, Type: "supergroup", IsForum: true},
		From:            &api.User{ID: memberID, UserName: "spammer", FirstName: "Sam", LastName: "Pam"},
		Text:            "hello",
		Caption:         "world",
		ReplyToMessage: &api.Message{
			MessageID: 10,
			Chat:      api.Chat{ID: testChatID, Type: "supergroup", IsForum: true},
			From:      &api.User{ID: adminID, FirstName: "Ada"},
			Text:      "earlier",
		},
	}

	got := MessageFromAPI(msg)
	if got.ChatID != testChatID || got.ChatType != moderation.ChatTypeSupergroup || got.MessageID != 11 {
		t.Fatalf("unexpected header %+v", got)
	}
	if got.ThreadID != 4 {
		t.Fatalf("forum thread id not kept: %d", got.ThreadID)
	}
	if got.Text != "hello world" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if got.Sender.ID != memberID || got.Sender.DisplayName() != "Sam Pam" {
		t.Fatalf("unexpected sender %+v", got.Sender)
	}
	target, ok := got.Target()
	if !ok || target.ID != adminID {
		t.Fatalf("unexpected reply target %+v, %v", target, ok)
	}
}

func TestMessageFromAPIIgnoresTopicRootReply(t *testing.T) {
	t.Parallel()

	msg := &api.Message{
		MessageID:       12,
		MessageThreadID: 4,
		Chat:            api.Chat{ID: testChatID, Type: "supergroup", IsForum: true},
		From:            &api.User{ID: memberID},
		Text:            "/warn",
		ReplyToMessage: &api.Message{
			MessageID: 4,
			From:      &api.User{ID: adminID},
		},
	}
	if _, ok := MessageFromAPI(msg).Target(); ok {
		t.Fatalf("topic root must not be a reply target")
	}
}

func TestProcessParsesCommands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		msg     *api.Message
		command string
		args    string
	}{
		{name: "plain", msg: commandMessage("/warns", 6), command: "warns"},
		{name: "addressed to us", msg: commandMessage("/Ban@ngmod_bot spam links", 14), command: "ban", args: "spam links"},
		{name: "addressed to another bot", msg: commandMessage("/ban@other_bot", 14), command: ""},
	}
	for _, tc := range cases {
		handler := &recordingHandler{proceed: true}
		up := newTestProcessor(handler)
		if err := up.Process(context.Background(), &api.Update{UpdateID: 1, Message: tc.msg}); err != nil {
			t.Fatalf("%s: process: %v", tc.name, err)
		}
		if len(handler.seen) != 1 {
			t.Fatalf("%s: handler called %d times", tc.name, len(handler.seen))
		}
		in := handler.seen[0]
		if in.Command != tc.command || in.Args != tc.args {
			t.Fatalf("%s: got command %q args %q", tc.name, in.Command, in.Args)
		}
	}
}

func TestProcessSkipsOutdatedUpdates(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{proceed: true}
	up := newTestProcessor(handler)
	msg := commandMessage("/warns", 6)
	msg.Date = int(processorNow.Add(-UpdateTimeout - time.Minute).Unix())

	if err := up.Process(context.Background(), &api.Update{UpdateID: 1, Message: msg}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(handler.seen) != 0 {
		t.Fatalf("outdated update must be skipped")
	}
}

func TestProcessHandlesEditedMessagesWithoutCommands(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{proceed: true}
	up := newTestProcessor(handler)
	msg := commandMessage("/ban", 4)
	msg.Date = int(processorNow.Add(-time.Hour).Unix())
	msg.EditDate = int(processorNow.Unix())

	if err := up.Process(context.Background(), &api.Update{UpdateID: 1, EditedMessage: msg}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(handler.seen) != 1 {
		t.Fatalf("recent edit must be processed")
	}
	if !handler.seen[0].Edited || handler.seen[0].Command != "" {
		t.Fatalf("edits are filtered but never run commands: %+v", handler.seen[0])
	}
}

func TestProcessStopsChain(t *testing.T) {
	t.Parallel()

	first := &recordingHandler{proceed: false}
	second := &recordingHandler{proceed: true}
	up := newTestProcessor(first, nil, second)

	if err := up.Process(context.Background(), &api.Update{UpdateID: 1, Message: commandMessage("/help", 5)}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(first.seen) != 1 || len(second.seen) != 0 {
		t.Fatalf("chain must stop after the first handler")
	}
}

func TestProcessWrapsHandlerErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	up := newTestProcessor(&recordingHandler{err: cause})
	err := up.Process(context.Background(), &api.Update{UpdateID: 1, Message: commandMessage("/help", 5)})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}

	if err := up.Process(context.Background(), nil); err == nil {
		t.Fatalf("nil update must be rejected")
	}
}
