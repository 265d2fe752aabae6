package handlers

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/bot"
	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/moderation"
)

// Filter runs every group message through the moderation engine, commands
// included. It has to come before Commands in the chain.
type Filter struct {
	engine Moderator
	exec   moderation.Executor
	logger *log.Entry
}

var _ bot.Handler = (*Filter)(nil)

func NewFilter(engine Moderator, exec moderation.Executor) *Filter {
	return &Filter{
		engine: engine,
		exec:   exec,
		logger: log.WithField("object", "Filter"),
	}
}

func (f *Filter) Handle(ctx context.Context, in *bot.Inbound) (bool, error) {
	msg := in.Message
	if !msg.IsGroup() || msg.Text == "" {
		return true, nil
	}

	report, err := f.engine.HandleMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, ngerrors.ErrStoreUnavailable) {
			lang := f.engine.Settings().Language
			reply(ctx, f.exec, msg, i18n.Get("⚠️ Moderation storage is unavailable, please try again later", lang))
		}
		return false, pkgerrors.WithMessage(err, "moderate message")
	}
	if report.Outcome == moderation.OutcomeClean {
		return true, nil
	}
	if failures := report.Err(); failures != nil {
		f.logger.WithFields(log.Fields{
			"incident": report.IncidentID,
			"error":    failures.Error(),
		}).Warn("moderation finished with failures")
	}
	return false, nil
}
