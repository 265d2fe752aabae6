package moderation

import (
	"context"
	"time"
)

type DirectiveKind string

const (
	KindDeleteMessage DirectiveKind = "delete_message"
	KindSendMessage   DirectiveKind = "send_message"
	KindBanUser       DirectiveKind = "ban_user"
	KindUnbanUser     DirectiveKind = "unban_user"
	KindAuditLog      DirectiveKind = "audit_log"
)

// Directive is a platform action requested by the engine.
type Directive interface {
	Kind() DirectiveKind
}

type (
	DeleteMessage struct {
		ChatID    int64
		MessageID int
	}

	// SendMessage carries HTML formatted text.
	SendMessage struct {
		ChatID   int64
		ThreadID int
		Text     string
		ReplyTo  int
	}

	// BanUser with a nil Until is permanent.
	BanUser struct {
		ChatID int64
		UserID int64
		Until  *time.Time
	}

	UnbanUser struct {
		ChatID int64
		UserID int64
	}

	AuditLog struct {
		Text string
	}
)

func (DeleteMessage) Kind() DirectiveKind { return KindDeleteMessage }
func (SendMessage) Kind() DirectiveKind   { return KindSendMessage }
func (BanUser) Kind() DirectiveKind       { return KindBanUser }
func (UnbanUser) Kind() DirectiveKind     { return KindUnbanUser }
func (AuditLog) Kind() DirectiveKind      { return KindAuditLog }

// Result is the outcome of one executed directive. MessageID is set for
// successfully sent messages.
type Result struct {
	MessageID int
	Err       error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Executor performs directives against the chat platform. Implementations
// bound every call by their own timeout and never retry.
type Executor interface {
	Execute(ctx context.Context, d Directive) Result
}

// Authorizer answers membership questions about a chat.
type Authorizer interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	// IsExempt covers administrators and any identity that must never be
	// moderated, such as the bot itself.
	IsExempt(ctx context.Context, chatID, userID int64) (bool, error)
	CanRestrict(ctx context.Context, chatID int64) (bool, error)
}

// Scheduler runs fire-and-forget jobs after a delay.
type Scheduler interface {
	After(delay time.Duration, name string, job func(ctx context.Context))
}

// Observer receives engine measurements.
type Observer interface {
	MessageHandled(outcome Outcome, elapsed time.Duration)
	StoreFailed(op string)
}

type nopObserver struct{}

func (nopObserver) MessageHandled(Outcome, time.Duration) {}
func (nopObserver) StoreFailed(string)                    {}
