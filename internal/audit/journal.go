// Package audit keeps a machine-readable journal of every moderation action
// the bot performs.
package audit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/iamwavecut/ngmod/internal/moderation"
)

// NewFileLogger builds a JSON logger appending to path.
func NewFileLogger(path string) (*zap.Logger, error) {
	loggingConfig := zap.NewProductionConfig()
	loggingConfig.DisableCaller = true
	loggingConfig.DisableStacktrace = true
	loggingConfig.Sampling = nil
	loggingConfig.OutputPaths = []string{path}
	loggingConfig.ErrorOutputPaths = []string{"stderr"}

	l, err := loggingConfig.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build audit logger")
	}
	return l.Named("audit"), nil
}

// Journal decorates an executor and records each directive with its outcome.
type Journal struct {
	next   moderation.Executor
	logger *zap.Logger
}

var _ moderation.Executor = (*Journal)(nil)

func NewJournal(next moderation.Executor, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{next: next, logger: logger}
}

func (j *Journal) Execute(ctx context.Context, d moderation.Directive) moderation.Result {
	started := time.Now()
	res := j.next.Execute(ctx, d)

	fields := append(directiveFields(d), zap.Duration("elapsed", time.Since(started)))
	if res.MessageID != 0 {
		fields = append(fields, zap.Int("sent_message_id", res.MessageID))
	}
	if res.Err != nil {
		j.logger.Warn("directive failed", append(fields, zap.Error(res.Err))...)
		return res
	}
	j.logger.Info("directive executed", fields...)
	return res
}

func (j *Journal) Start(ctx context.Context) error {
	_ = ctx
	return nil
}

// Stop flushes buffered entries.
func (j *Journal) Stop(ctx context.Context) error {
	_ = ctx
	_ = j.logger.Sync()
	return nil
}

func directiveFields(d moderation.Directive) []zap.Field {
	if d == nil {
		return []zap.Field{zap.String("kind", "unknown")}
	}
	fields := []zap.Field{zap.String("kind", string(d.Kind()))}
	switch d := d.(type) {
	case moderation.DeleteMessage:
		fields = append(fields, zap.Int64("chat_id", d.ChatID), zap.Int("message_id", d.MessageID))
	case moderation.SendMessage:
		fields = append(fields, zap.Int64("chat_id", d.ChatID), zap.Int("thread_id", d.ThreadID), zap.Int("reply_to", d.ReplyTo), zap.String("text", d.Text))
	case moderation.BanUser:
		fields = append(fields, zap.Int64("chat_id", d.ChatID), zap.Int64("user_id", d.UserID), zap.Bool("permanent", d.Until == nil))
		if d.Until != nil {
			fields = append(fields, zap.Time("until", *d.Until))
		}
	case moderation.UnbanUser:
		fields = append(fields, zap.Int64("chat_id", d.ChatID), zap.Int64("user_id", d.UserID))
	case moderation.AuditLog:
		fields = append(fields, zap.String("text", d.Text))
	}
	return fields
}
