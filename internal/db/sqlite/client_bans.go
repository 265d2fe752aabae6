package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iamwavecut/ngmod/internal/db"
	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
)

func (c *sqliteClient) AddBan(ctx context.Context, chatID, userID, bannedBy int64, reason string, duration time.Duration) (*db.BanRecord, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ban := db.NewBanRecord(chatID, userID, bannedBy, reason, duration, c.now())
	result, err := c.db.ExecContext(ctx, `
		INSERT INTO bans (chat_id, user_id, banned_by, reason, banned_at, ban_until)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ban.ChatID, ban.UserID, ban.BannedBy, ban.Reason, ban.BannedAt, ban.BanUntil)
	if err != nil {
		return nil, ngerrors.Store("insert ban", err)
	}
	if ban.ID, err = result.LastInsertId(); err != nil {
		return nil, ngerrors.Store("ban id", err)
	}
	return ban, nil
}

func (c *sqliteClient) AddUnban(ctx context.Context, chatID, userID, unbannedBy int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO unbans (chat_id, user_id, unbanned_by, unbanned_at)
		VALUES (?, ?, ?, ?)
	`, chatID, userID, unbannedBy, c.now())
	return ngerrors.Store("insert unban", err)
}

// IsBanned looks only at the latest ban and the latest unban of the pair;
// expiry is evaluated against the client clock.
func (c *sqliteClient) IsBanned(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	ban := &db.BanRecord{}
	err := c.db.GetContext(ctx, ban, `
		SELECT id, chat_id, user_id, banned_by, reason, banned_at, ban_until
		FROM bans
		WHERE chat_id = ? AND user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, ngerrors.Store("get latest ban", err)
	}
	if !ban.ActiveAt(c.now()) {
		return false, nil
	}

	unban := &db.UnbanRecord{}
	err = c.db.GetContext(ctx, unban, `
		SELECT id, chat_id, user_id, unbanned_by, unbanned_at
		FROM unbans
		WHERE chat_id = ? AND user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, ngerrors.Store("get latest unban", err)
	}
	return !ban.LiftedBy(unban), nil
}
