package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
)

func (e *Engine) requireAdmin(ctx context.Context, chatID, actorID int64) error {
	ok, err := e.authz.IsAdmin(ctx, chatID, actorID)
	if err != nil {
		return ngerrors.Platform("check admin", err)
	}
	if !ok {
		return ngerrors.ErrNotAdmin
	}
	return nil
}

func (e *Engine) requireModeratable(ctx context.Context, chatID int64, target *Member) error {
	if target == nil || target.ID == 0 {
		return ngerrors.ErrMissingTarget
	}
	exempt, err := e.authz.IsExempt(ctx, chatID, target.ID)
	if err != nil {
		return ngerrors.Platform("check membership", err)
	}
	if exempt {
		return ngerrors.ErrTargetExempt
	}
	return nil
}

// Warn records a manual warning. Reaching the threshold escalates exactly
// like an automatic violation.
func (e *Engine) Warn(ctx context.Context, chatID, actorID int64, target *Member) (*Report, error) {
	if err := e.requireAdmin(ctx, chatID, actorID); err != nil {
		return nil, err
	}
	if err := e.requireModeratable(ctx, chatID, target); err != nil {
		return nil, err
	}

	report := &Report{
		IncidentID: uuid.New(),
		Outcome:    OutcomeWarned,
		Threshold:  e.settings.MaxViolations,
	}
	entry := e.logger.WithFields(log.Fields{
		"chat_id":  chatID,
		"user_id":  target.ID,
		"actor_id": actorID,
		"incident": report.IncidentID,
	})

	count, err := e.store.AddViolation(ctx, &db.ViolationRecord{
		ChatID:      chatID,
		UserID:      target.ID,
		Username:    target.Username,
		DisplayName: target.DisplayName(),
		Text:        manualWarningSnippet(e.settings.Language),
	})
	if err != nil {
		return report, e.halt(ctx, entry, report, chatID, *target, "add_violation", err)
	}
	report.Count = count

	if count >= e.settings.MaxViolations {
		if err := e.store.ResetViolations(ctx, chatID, target.ID); err != nil {
			return report, e.halt(ctx, entry, report, chatID, *target, "reset_violations", err)
		}
		report.Outcome = OutcomeEscalated
		e.escalate(ctx, entry, report, chatID, 0, *target)
	}

	e.audit(ctx, report, chatID, *target, fmt.Sprintf(
		"manual warning by %d, count %d/%d", actorID, count, e.settings.MaxViolations,
	))
	entry.WithField("count", count).Info("manual warning issued")
	return report, nil
}

// Unwarn clears the counter and the violation history of the target.
func (e *Engine) Unwarn(ctx context.Context, chatID, actorID int64, target *Member) error {
	if err := e.requireAdmin(ctx, chatID, actorID); err != nil {
		return err
	}
	if target == nil || target.ID == 0 {
		return ngerrors.ErrMissingTarget
	}
	if err := e.store.ResetViolations(ctx, chatID, target.ID); err != nil {
		e.observer.StoreFailed("reset_violations")
		return storeErr("reset_violations", err)
	}
	e.audit(ctx, nil, chatID, *target, fmt.Sprintf("warnings cleared by %d", actorID))
	return nil
}

// Warns reports the current standing of target. It is open to everyone.
func (e *Engine) Warns(ctx context.Context, chatID int64, target Member) (*Standing, error) {
	count, err := e.store.GetViolationCount(ctx, chatID, target.ID)
	if err != nil {
		e.observer.StoreFailed("get_violation_count")
		return nil, storeErr("get_violation_count", err)
	}
	banned, err := e.store.IsBanned(ctx, chatID, target.ID)
	if err != nil {
		e.observer.StoreFailed("is_banned")
		return nil, storeErr("is_banned", err)
	}
	return &Standing{
		Count:     count,
		Threshold: e.settings.MaxViolations,
		Banned:    banned,
	}, nil
}

// Ban bans target permanently, bypassing the counter. An empty reason falls
// back to a generic one.
func (e *Engine) Ban(ctx context.Context, chatID, actorID int64, target *Member, reason string) error {
	if err := e.requireAdmin(ctx, chatID, actorID); err != nil {
		return err
	}
	if err := e.requireModeratable(ctx, chatID, target); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = manualBanReason(e.settings.Language)
	}

	_, err := e.ban(ctx, chatID, target.ID, actorID, reason, 0)
	switch {
	case err == nil:
		e.audit(ctx, nil, chatID, *target, fmt.Sprintf("banned by %d: %s", actorID, reason))
	case errors.Is(err, ngerrors.ErrStoreUnavailable):
		e.observer.StoreFailed("add_ban")
		e.audit(ctx, nil, chatID, *target, fmt.Sprintf("banned by %d but not recorded: %v", actorID, err))
	default:
		e.audit(ctx, nil, chatID, *target, fmt.Sprintf("ban by %d failed: %v", actorID, err))
	}
	return err
}

// Unban lifts the platform ban and records the unban.
func (e *Engine) Unban(ctx context.Context, chatID, actorID int64, target *Member) error {
	if err := e.requireAdmin(ctx, chatID, actorID); err != nil {
		return err
	}
	if target == nil || target.ID == 0 {
		return ngerrors.ErrMissingTarget
	}

	if res := e.exec.Execute(ctx, UnbanUser{ChatID: chatID, UserID: target.ID}); !res.OK() {
		err := res.Err
		if !errors.Is(err, ngerrors.ErrPlatformAction) && !errors.Is(err, ngerrors.ErrInsufficientPrivilege) {
			err = ngerrors.Platform("unban", err)
		}
		e.audit(ctx, nil, chatID, *target, fmt.Sprintf("unban by %d failed: %v", actorID, err))
		return err
	}
	if err := e.store.AddUnban(ctx, chatID, target.ID, actorID); err != nil {
		e.observer.StoreFailed("add_unban")
		err = storeErr("add_unban", err)
		e.audit(ctx, nil, chatID, *target, fmt.Sprintf("unbanned by %d but not recorded: %v", actorID, err))
		return err
	}
	e.audit(ctx, nil, chatID, *target, fmt.Sprintf("unbanned by %d", actorID))
	return nil
}

// Violations lists the most recent violations of target, newest first.
func (e *Engine) Violations(ctx context.Context, chatID, actorID int64, target *Member, limit int) ([]db.ViolationEntry, error) {
	if err := e.requireAdmin(ctx, chatID, actorID); err != nil {
		return nil, err
	}
	if target == nil || target.ID == 0 {
		return nil, ngerrors.ErrMissingTarget
	}
	entries, err := e.store.GetViolations(ctx, chatID, target.ID, limit)
	if err != nil {
		e.observer.StoreFailed("get_violations")
		return nil, storeErr("get_violations", err)
	}
	return entries, nil
}
