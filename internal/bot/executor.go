package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/moderation"
)

const (
	errNotEnoughRights   = "not enough rights"
	errChatAdminRequired = "CHAT_ADMIN_REQUIRED"
)

// Requester is the part of *api.BotAPI the executor needs.
type Requester interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
}

// Executor performs moderation directives through the Bot API. Every call is
// bounded by the action timeout and never retried.
type Executor struct {
	client      Requester
	timeout     time.Duration
	auditChatID int64
	logger      *log.Entry
}

var _ moderation.Executor = (*Executor)(nil)

// NewExecutor returns an executor. An auditChatID of zero disables audit
// delivery to the chat.
func NewExecutor(client Requester, timeout time.Duration, auditChatID int64) *Executor {
	return &Executor{
		client:      client,
		timeout:     timeout,
		auditChatID: auditChatID,
		logger:      log.WithField("object", "Executor"),
	}
}

func (x *Executor) Execute(ctx context.Context, d moderation.Directive) moderation.Result {
	switch d := d.(type) {
	case moderation.DeleteMessage:
		return moderation.Result{Err: x.request(ctx, "delete message", api.NewDeleteMessage(d.ChatID, d.MessageID))}

	case moderation.SendMessage:
		msg := api.NewMessage(d.ChatID, d.Text)
		msg.ParseMode = api.ModeHTML
		msg.MessageThreadID = d.ThreadID
		msg.LinkPreviewOptions.IsDisabled = true
		if d.ReplyTo != 0 {
			msg.ReplyParameters = api.ReplyParameters{
				ChatID:                   d.ChatID,
				MessageID:                d.ReplyTo,
				AllowSendingWithoutReply: true,
			}
		}
		return x.send(ctx, "send message", msg)

	case moderation.BanUser:
		config := api.BanChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{ChatID: d.ChatID},
				UserID:     d.UserID,
			},
			// Keep the member's earlier messages as evidence.
			RevokeMessages: false,
		}
		if d.Until != nil {
			config.UntilDate = d.Until.Unix()
		}
		return moderation.Result{Err: x.request(ctx, "ban", config)}

	case moderation.UnbanUser:
		config := api.UnbanChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{ChatID: d.ChatID},
				UserID:     d.UserID,
			},
			OnlyIfBanned: true,
		}
		return moderation.Result{Err: x.request(ctx, "unban", config)}

	case moderation.AuditLog:
		if x.auditChatID == 0 {
			return moderation.Result{}
		}
		msg := api.NewMessage(x.auditChatID, d.Text)
		msg.LinkPreviewOptions.IsDisabled = true
		msg.DisableNotification = true
		return x.send(ctx, "audit log", msg)
	}

	return moderation.Result{Err: ngerrors.Platform("execute", fmt.Errorf("unsupported directive %T", d))}
}

func (x *Executor) request(ctx context.Context, op string, c api.Chattable) error {
	_, err := withTimeout(ctx, x.timeout, func() (*api.APIResponse, error) {
		return x.client.Request(c)
	})
	if err != nil {
		x.logger.WithField("op", op).WithField("error", err.Error()).Debug("request failed")
		return classify(op, err)
	}
	return nil
}

func (x *Executor) send(ctx context.Context, op string, c api.Chattable) moderation.Result {
	msg, err := withTimeout(ctx, x.timeout, func() (api.Message, error) {
		return x.client.Send(c)
	})
	if err != nil {
		x.logger.WithField("op", op).WithField("error", err.Error()).Debug("send failed")
		return moderation.Result{Err: classify(op, err)}
	}
	return moderation.Result{MessageID: msg.MessageID}
}

// classify maps Bot API failures onto the moderation error taxonomy.
func classify(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, errNotEnoughRights) || strings.Contains(msg, errChatAdminRequired) {
		return fmt.Errorf("%w: %s: %w", ngerrors.ErrInsufficientPrivilege, op, err)
	}
	return ngerrors.Platform(op, err)
}

// withTimeout runs call in its own goroutine and gives up once ctx, bounded by
// timeout, is done. The Bot API client takes no context, so an abandoned call
// finishes in the background and its result is dropped.
func withTimeout[T any](ctx context.Context, timeout time.Duration, call func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		value, err := call()
		ch <- result{value: value, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
