package db

import (
	"context"
	"time"
)

// Store is the durable source of truth for violation counters, violation
// history and ban history. Every mutating call is atomic per (chat, user).
// Failures are reported wrapped in errors.ErrStoreUnavailable; a missing
// record is never an error.
type Store interface {
	// AddViolation increments the counter for the pair (creating it at 1),
	// appends the record and returns the resulting count.
	AddViolation(ctx context.Context, v *ViolationRecord) (int, error)
	GetViolationCount(ctx context.Context, chatID, userID int64) (int, error)
	// ResetViolations drops the counter and the history of the pair.
	ResetViolations(ctx context.Context, chatID, userID int64) error
	GetViolations(ctx context.Context, chatID, userID int64, limit int) ([]ViolationEntry, error)

	// AddBan appends a ban; a zero duration means permanent.
	AddBan(ctx context.Context, chatID, userID, bannedBy int64, reason string, duration time.Duration) (*BanRecord, error)
	AddUnban(ctx context.Context, chatID, userID, unbannedBy int64) error
	IsBanned(ctx context.Context, chatID, userID int64) (bool, error)

	Close() error
}

// Clock returns the current time. Stores take one so expiry can be tested.
type Clock func() time.Time
