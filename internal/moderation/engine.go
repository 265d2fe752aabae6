// Package moderation tracks violations per chat member and escalates repeat
// offenders to a ban.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamwavecut/ngmod/internal/db"
	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/filter"
)

const tracerName = "github.com/iamwavecut/ngmod/internal/moderation"

// Settings are the process-wide moderation parameters.
type Settings struct {
	MaxViolations int
	// BanDuration of zero bans permanently.
	BanDuration time.Duration
	// WarningTTL of zero keeps warnings in the chat.
	WarningTTL time.Duration
	Language   string
}

type Engine struct {
	store    db.Store
	matcher  *filter.Matcher
	authz    Authorizer
	exec     Executor
	sched    Scheduler
	settings Settings
	observer Observer
	now      func() time.Time
	tracer   trace.Tracer
	logger   *log.Entry
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithLogger(entry *log.Entry) Option {
	return func(e *Engine) {
		if entry != nil {
			e.logger = entry
		}
	}
}

func NewEngine(store db.Store, matcher *filter.Matcher, authz Authorizer, exec Executor, sched Scheduler, settings Settings, opts ...Option) *Engine {
	if settings.MaxViolations < 1 {
		settings.MaxViolations = 1
	}
	e := &Engine{
		store:    store,
		matcher:  matcher,
		authz:    authz,
		exec:     exec,
		sched:    sched,
		settings: settings,
		observer: nopObserver{},
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
		logger:   log.WithField("object", "Engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Settings() Settings {
	return e.settings
}

// TermCount is the size of the prohibited word list.
func (e *Engine) TermCount() int {
	return e.matcher.Len()
}

// HandleMessage runs a group message through the matcher and, when it is
// flagged, records the violation and applies the escalation policy.
//
// A store failure halts the sequence and is returned. Platform failures are
// collected in the report and never abort it.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) (report *Report, err error) {
	ctx, span := e.tracer.Start(ctx, "moderation.HandleMessage", trace.WithAttributes(
		attribute.Int64("chat.id", msg.ChatID),
		attribute.Int64("user.id", msg.Sender.ID),
	))
	started := time.Now()
	report = &Report{Outcome: OutcomeClean, Threshold: e.settings.MaxViolations}
	defer func() {
		span.SetAttributes(attribute.String("moderation.outcome", string(report.Outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.observer.MessageHandled(report.Outcome, time.Since(started))
	}()

	if !msg.IsGroup() || msg.Sender.ID == 0 {
		return report, nil
	}
	term, flagged := e.matcher.Flag(msg.Text)
	if !flagged {
		return report, nil
	}
	report.Term = term
	report.IncidentID = uuid.New()
	entry := e.logger.WithFields(log.Fields{
		"chat_id":  msg.ChatID,
		"user_id":  msg.Sender.ID,
		"incident": report.IncidentID,
	})

	exempt, err := e.authz.IsExempt(ctx, msg.ChatID, msg.Sender.ID)
	if err != nil {
		report.Outcome = OutcomeHalted
		err = ngerrors.Platform("check membership", err)
		entry.WithField("error", err.Error()).Warn("membership check failed, message left in place")
		e.audit(ctx, report, msg.ChatID, msg.Sender, "membership check failed: "+err.Error())
		return report, err
	}
	if exempt {
		report.Outcome = OutcomeExempt
		e.deleteMessage(ctx, entry, report, msg)
		entry.WithField("term", term).Info("removed prohibited word from exempt member")
		return report, nil
	}

	count, err := e.store.AddViolation(ctx, &db.ViolationRecord{
		ChatID:      msg.ChatID,
		UserID:      msg.Sender.ID,
		Username:    msg.Sender.Username,
		DisplayName: msg.Sender.DisplayName(),
		Text:        db.Snippet(msg.Text),
	})
	if err != nil {
		return report, e.halt(ctx, entry, report, msg.ChatID, msg.Sender, "add_violation", err)
	}
	report.Count = count
	report.Outcome = OutcomeWarned

	e.deleteMessage(ctx, entry, report, msg)

	escalate := count >= e.settings.MaxViolations
	if escalate {
		if err := e.store.ResetViolations(ctx, msg.ChatID, msg.Sender.ID); err != nil {
			return report, e.halt(ctx, entry, report, msg.ChatID, msg.Sender, "reset_violations", err)
		}
		report.Outcome = OutcomeEscalated
	}

	e.sendWarning(ctx, entry, report, msg)
	if escalate {
		e.escalate(ctx, entry, report, msg.ChatID, msg.ThreadID, msg.Sender)
	}

	e.audit(ctx, report, msg.ChatID, msg.Sender, fmt.Sprintf(
		"%s: term %q, count %d/%d", report.Outcome, term, count, e.settings.MaxViolations,
	))
	entry.WithFields(log.Fields{
		"term":    term,
		"count":   count,
		"outcome": report.Outcome,
	}).Info("violation handled")
	return report, nil
}

func (e *Engine) deleteMessage(ctx context.Context, entry *log.Entry, report *Report, msg Message) {
	res := e.exec.Execute(ctx, DeleteMessage{ChatID: msg.ChatID, MessageID: msg.MessageID})
	if res.OK() {
		return
	}
	report.fail(res.Err)
	entry.WithField("error", res.Err.Error()).Warn("failed to delete flagged message")
	e.audit(ctx, report, msg.ChatID, msg.Sender, "delete failed: "+res.Err.Error())
}

func (e *Engine) sendWarning(ctx context.Context, entry *log.Entry, report *Report, msg Message) {
	lang := e.settings.Language
	res := e.exec.Execute(ctx, SendMessage{
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Text:     warningText(lang, msg.Sender, report.Count, report.Term, e.settings.MaxViolations),
	})
	if !res.OK() {
		report.fail(res.Err)
		entry.WithField("error", res.Err.Error()).Warn("failed to send warning")
		return
	}
	e.scheduleDelete(msg.ChatID, res.MessageID)
}

func (e *Engine) scheduleDelete(chatID int64, messageID int) {
	if e.sched == nil || e.settings.WarningTTL <= 0 || messageID == 0 {
		return
	}
	e.sched.After(e.settings.WarningTTL, "delete_warning", func(ctx context.Context) {
		res := e.exec.Execute(ctx, DeleteMessage{ChatID: chatID, MessageID: messageID})
		if !res.OK() {
			e.logger.WithFields(log.Fields{
				"chat_id":    chatID,
				"message_id": messageID,
				"error":      res.Err.Error(),
			}).Warn("failed to delete warning")
		}
	})
}

// escalate bans the member for the configured duration and announces the
// outcome in the chat.
func (e *Engine) escalate(ctx context.Context, entry *log.Entry, report *Report, chatID int64, threadID int, target Member) {
	lang := e.settings.Language
	threshold := e.settings.MaxViolations

	ban, err := e.ban(ctx, chatID, target.ID, 0, escalationReason(lang, threshold), e.settings.BanDuration)
	switch {
	case err == nil:
		report.Banned = true
		report.BanUntil = ban.BanUntil
		e.announce(ctx, entry, report, chatID, threadID, escalationText(lang, target, e.settings.BanDuration, threshold))
	case errors.Is(err, ngerrors.ErrInsufficientPrivilege):
		report.fail(err)
		entry.Warn("cannot escalate: bot lacks restrict privilege")
		e.announce(ctx, entry, report, chatID, threadID, noRightsText(lang))
		e.audit(ctx, report, chatID, target, "ban skipped: "+err.Error())
	case errors.Is(err, ngerrors.ErrStoreUnavailable):
		// The platform ban went through; only the record is missing.
		report.Banned = true
		report.fail(err)
		e.observer.StoreFailed("add_ban")
		entry.WithField("error", err.Error()).Error("ban applied but not recorded")
		e.announce(ctx, entry, report, chatID, threadID, escalationText(lang, target, e.settings.BanDuration, threshold))
		e.audit(ctx, report, chatID, target, "ban not recorded: "+err.Error())
	default:
		report.fail(err)
		entry.WithField("error", err.Error()).Error("failed to ban")
		e.announce(ctx, entry, report, chatID, threadID, banFailedText(lang, err))
		e.audit(ctx, report, chatID, target, "ban failed: "+err.Error())
	}
}

// ban checks the restrict privilege, bans on the platform and only then
// appends the ban record. A returned ErrStoreUnavailable therefore means the
// platform ban succeeded.
func (e *Engine) ban(ctx context.Context, chatID, userID, bannedBy int64, reason string, duration time.Duration) (*db.BanRecord, error) {
	canRestrict, err := e.authz.CanRestrict(ctx, chatID)
	if err != nil {
		return nil, ngerrors.Platform("check restrict privilege", err)
	}
	if !canRestrict {
		return nil, ngerrors.ErrInsufficientPrivilege
	}

	directive := BanUser{ChatID: chatID, UserID: userID}
	if duration > 0 {
		until := e.now().Add(duration)
		directive.Until = &until
	}
	if res := e.exec.Execute(ctx, directive); !res.OK() {
		if errors.Is(res.Err, ngerrors.ErrInsufficientPrivilege) || errors.Is(res.Err, ngerrors.ErrPlatformAction) {
			return nil, res.Err
		}
		return nil, ngerrors.Platform("ban", res.Err)
	}

	ban, err := e.store.AddBan(ctx, chatID, userID, bannedBy, reason, duration)
	if err != nil {
		return nil, storeErr("add_ban", err)
	}
	return ban, nil
}

func (e *Engine) announce(ctx context.Context, entry *log.Entry, report *Report, chatID int64, threadID int, text string) {
	res := e.exec.Execute(ctx, SendMessage{ChatID: chatID, ThreadID: threadID, Text: text})
	if !res.OK() {
		report.fail(res.Err)
		entry.WithField("error", res.Err.Error()).Warn("failed to send announcement")
	}
}

func (e *Engine) halt(ctx context.Context, entry *log.Entry, report *Report, chatID int64, member Member, op string, err error) error {
	report.Outcome = OutcomeHalted
	err = storeErr(op, err)
	e.observer.StoreFailed(op)
	entry.WithField("error", err.Error()).Error("violation store unavailable")
	e.audit(ctx, report, chatID, member, "halted: "+err.Error())
	return err
}

// audit mirrors a moderation event to the audit destination. Its own failure
// is only logged.
func (e *Engine) audit(ctx context.Context, report *Report, chatID int64, member Member, line string) {
	incident := ""
	if report != nil && report.IncidentID != "" {
		incident = "[" + report.IncidentID + "] "
	}
	text := fmt.Sprintf("%schat %d, user %d (%s): %s", incident, chatID, member.ID, member.DisplayName(), line)
	if res := e.exec.Execute(ctx, AuditLog{Text: text}); !res.OK() {
		e.logger.WithField("error", res.Err.Error()).Debug("audit log delivery failed")
	}
}

func storeErr(op string, err error) error {
	if errors.Is(err, ngerrors.ErrStoreUnavailable) {
		return err
	}
	return ngerrors.Store(op, err)
}
