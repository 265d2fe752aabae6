package errors

import (
	"errors"
	"fmt"
)

// Moderation error taxonomy. Callers match with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAdmin         = fmt.Errorf("%w: actor is not an administrator", ErrPermissionDenied)
	ErrTargetExempt     = fmt.Errorf("%w: target is exempt from moderation", ErrPermissionDenied)

	ErrMissingTarget         = errors.New("missing reply target")
	ErrStoreUnavailable      = errors.New("violation store unavailable")
	ErrPlatformAction        = errors.New("platform action failed")
	ErrInsufficientPrivilege = errors.New("bot lacks restrict privilege")
)

// Store wraps a persistence failure so that it matches ErrStoreUnavailable
// while keeping the driver error in the chain.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Platform wraps a chat platform failure so that it matches ErrPlatformAction.
func Platform(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPlatformAction, op, err)
}

// IsUserFacing reports whether err is a rejection meant for the requesting
// user rather than a system fault.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrMissingTarget)
}
