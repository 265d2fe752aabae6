package db

import (
	"time"
	"unicode/utf8"
)

// MaxSnippetLength bounds the stored excerpt of an offending message, in runes.
const MaxSnippetLength = 200

type (
	ViolationRecord struct {
		ID          int64     `db:"id" json:"id"`
		ChatID      int64     `db:"chat_id" json:"chat_id"`
		UserID      int64     `db:"user_id" json:"user_id"`
		Username    string    `db:"username" json:"username"`
		DisplayName string    `db:"display_name" json:"display_name"`
		Text        string    `db:"text" json:"text"`
		CreatedAt   time.Time `db:"created_at" json:"created_at"`
	}

	ViolationCounter struct {
		ChatID        int64     `db:"chat_id"`
		UserID        int64     `db:"user_id"`
		Count         int       `db:"count"`
		LastViolation time.Time `db:"last_violation"`
	}

	ViolationEntry struct {
		Text      string    `db:"text" json:"text"`
		CreatedAt time.Time `db:"created_at" json:"created_at"`
	}

	BanRecord struct {
		ID       int64      `db:"id" json:"id"`
		ChatID   int64      `db:"chat_id" json:"chat_id"`
		UserID   int64      `db:"user_id" json:"user_id"`
		BannedBy int64      `db:"banned_by" json:"banned_by"`
		Reason   string     `db:"reason" json:"reason"`
		BannedAt time.Time  `db:"banned_at" json:"banned_at"`
		BanUntil *time.Time `db:"ban_until" json:"ban_until,omitempty"`
	}

	UnbanRecord struct {
		ID         int64     `db:"id" json:"id"`
		ChatID     int64     `db:"chat_id" json:"chat_id"`
		UserID     int64     `db:"user_id" json:"user_id"`
		UnbannedBy int64     `db:"unbanned_by" json:"unbanned_by"`
		UnbannedAt time.Time `db:"unbanned_at" json:"unbanned_at"`
	}
)

// IsPermanent reports whether the ban never expires.
func (b *BanRecord) IsPermanent() bool {
	return b.BanUntil == nil
}

// ActiveAt reports whether the ban restricts the user at the given moment,
// ignoring any later unban.
func (b *BanRecord) ActiveAt(now time.Time) bool {
	if b == nil {
		return false
	}
	return b.BanUntil == nil || b.BanUntil.After(now)
}

// LiftedBy reports whether the unban happened at or after the ban was issued.
func (b *BanRecord) LiftedBy(u *UnbanRecord) bool {
	if b == nil || u == nil {
		return false
	}
	return !u.UnbannedAt.Before(b.BannedAt)
}

// NewBanRecord builds a ban starting at now. A zero duration is permanent.
func NewBanRecord(chatID, userID, bannedBy int64, reason string, duration time.Duration, now time.Time) *BanRecord {
	ban := &BanRecord{
		ChatID:   chatID,
		UserID:   userID,
		BannedBy: bannedBy,
		Reason:   reason,
		BannedAt: now,
	}
	if duration > 0 {
		until := now.Add(duration)
		ban.BanUntil = &until
	}
	return ban
}

// Snippet truncates text to MaxSnippetLength runes.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= MaxSnippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxSnippetLength])
}
