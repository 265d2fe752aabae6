package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
)

func (c *sqliteClient) AddViolation(ctx context.Context, v *db.ViolationRecord) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = c.now()
	}
	v.Text = db.Snippet(v.Text)

	var count int
	err := c.inTx(ctx, "add violation", func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &count, `
			INSERT INTO violation_counts (chat_id, user_id, count, last_violation)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(chat_id, user_id) DO UPDATE SET
				count = violation_counts.count + 1,
				last_violation = excluded.last_violation
			RETURNING count
		`, v.ChatID, v.UserID, v.CreatedAt)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO violations (chat_id, user_id, username, display_name, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, v.ChatID, v.UserID, v.Username, v.DisplayName, v.Text, v.CreatedAt)
		if err != nil {
			return err
		}
		v.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *sqliteClient) GetViolationCount(ctx context.Context, chatID, userID int64) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT count FROM violation_counts WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, ngerrors.Store("get violation count", err)
	}
	return count, nil
}

func (c *sqliteClient) ResetViolations(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.inTx(ctx, "reset violations", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM violation_counts WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM violations WHERE chat_id = ? AND user_id = ?`, chatID, userID)
		return err
	})
}

func (c *sqliteClient) GetViolations(ctx context.Context, chatID, userID int64, limit int) ([]db.ViolationEntry, error) {
	entries := make([]db.ViolationEntry, 0)
	if limit <= 0 {
		return entries, nil
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	err := c.db.SelectContext(ctx, &entries, `
		SELECT text, created_at FROM violations
		WHERE chat_id = ? AND user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, chatID, userID, limit)
	if err != nil {
		return nil, ngerrors.Store("get violations", err)
	}
	return entries, nil
}

// inTx runs fn in a transaction, rolling back unless fn and the commit succeed.
func (c *sqliteClient) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return ngerrors.Store(op, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.WithField("object", "sqlite").WithField("error", err.Error()).Error("rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		return ngerrors.Store(op, err)
	}
	if err := tx.Commit(); err != nil {
		return ngerrors.Store(op, err)
	}
	committed = true
	return nil
}
