package handlers

import (
	"context"

	"github.com/iamwavecut/ngmod/internal/db"
	"github.com/iamwavecut/ngmod/internal/moderation"
)

// Moderator is the moderation engine surface the chat handlers drive.
type Moderator interface {
	HandleMessage(ctx context.Context, msg moderation.Message) (*moderation.Report, error)
	Warn(ctx context.Context, chatID, actorID int64, target *moderation.Member) (*moderation.Report, error)
	Unwarn(ctx context.Context, chatID, actorID int64, target *moderation.Member) error
	Warns(ctx context.Context, chatID int64, target moderation.Member) (*moderation.Standing, error)
	Ban(ctx context.Context, chatID, actorID int64, target *moderation.Member, reason string) error
	Unban(ctx context.Context, chatID, actorID int64, target *moderation.Member) error
	Violations(ctx context.Context, chatID, actorID int64, target *moderation.Member, limit int) ([]db.ViolationEntry, error)
	Settings() moderation.Settings
	TermCount() int
}

var _ Moderator = (*moderation.Engine)(nil)

// reply answers msg in its own thread.
func reply(ctx context.Context, exec moderation.Executor, msg moderation.Message, text string) moderation.Result {
	return exec.Execute(ctx, moderation.SendMessage{
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Text:     text,
		ReplyTo:  msg.MessageID,
	})
}
