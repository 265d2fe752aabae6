// Package redis keeps violation counters and ban history in Redis so that
// several bot replicas can share one moderation state.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iamwavecut/ngmod/internal/db"
	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
)

const keyPrefix = "ngmod/"

type redisClient struct {
	client *redis.Client
	now    db.Clock
}

type Option func(*redisClient)

// WithClock replaces the wall clock used for timestamps and ban expiry.
func WithClock(clock db.Clock) Option {
	return func(c *redisClient) {
		if clock != nil {
			c.now = clock
		}
	}
}

func NewRedisClient(ctx context.Context, redisURL string, opts ...Option) (*redisClient, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	c := &redisClient{
		client: rdb,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *redisClient) Close() error {
	return c.client.Close()
}

func pairKey(kind string, chatID, userID int64) string {
	return keyPrefix + kind + "/" + strconv.FormatInt(chatID, 10) + "/" + strconv.FormatInt(userID, 10)
}

func countKey(chatID, userID int64) string     { return pairKey("count", chatID, userID) }
func violationsKey(chatID, userID int64) string { return pairKey("violations", chatID, userID) }
func bansKey(chatID, userID int64) string       { return pairKey("bans", chatID, userID) }
func unbansKey(chatID, userID int64) string     { return pairKey("unbans", chatID, userID) }
func sequenceKey(kind string) string            { return keyPrefix + "seq/" + kind }

func (c *redisClient) nextID(ctx context.Context, kind string) (int64, error) {
	return c.client.Incr(ctx, sequenceKey(kind)).Result()
}

func (c *redisClient) AddViolation(ctx context.Context, v *db.ViolationRecord) (int, error) {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = c.now()
	}
	v.Text = db.Snippet(v.Text)

	id, err := c.nextID(ctx, "violations")
	if err != nil {
		return 0, ngerrors.Store("violation id", err)
	}
	record := *v
	record.ID = id
	payload, err := json.Marshal(record)
	if err != nil {
		return 0, ngerrors.Store("encode violation", err)
	}

	var incr *redis.IntCmd
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, countKey(v.ChatID, v.UserID))
		pipe.LPush(ctx, violationsKey(v.ChatID, v.UserID), payload)
		return nil
	})
	if err != nil {
		return 0, ngerrors.Store("add violation", err)
	}
	v.ID = id
	return int(incr.Val()), nil
}

func (c *redisClient) GetViolationCount(ctx context.Context, chatID, userID int64) (int, error) {
	count, err := c.client.Get(ctx, countKey(chatID, userID)).Int()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, ngerrors.Store("get violation count", err)
	}
	return count, nil
}

func (c *redisClient) ResetViolations(ctx context.Context, chatID, userID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, countKey(chatID, userID), violationsKey(chatID, userID))
		return nil
	})
	return ngerrors.Store("reset violations", err)
}

func (c *redisClient) GetViolations(ctx context.Context, chatID, userID int64, limit int) ([]db.ViolationEntry, error) {
	entries := make([]db.ViolationEntry, 0)
	if limit <= 0 {
		return entries, nil
	}

	raw, err := c.client.LRange(ctx, violationsKey(chatID, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, ngerrors.Store("get violations", err)
	}
	for _, item := range raw {
		var record db.ViolationRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, ngerrors.Store("decode violation", err)
		}
		entries = append(entries, db.ViolationEntry{Text: record.Text, CreatedAt: record.CreatedAt})
	}
	return entries, nil
}

func (c *redisClient) AddBan(ctx context.Context, chatID, userID, bannedBy int64, reason string, duration time.Duration) (*db.BanRecord, error) {
	ban := db.NewBanRecord(chatID, userID, bannedBy, reason, duration, c.now())
	id, err := c.nextID(ctx, "bans")
	if err != nil {
		return nil, ngerrors.Store("ban id", err)
	}
	ban.ID = id
	payload, err := json.Marshal(ban)
	if err != nil {
		return nil, ngerrors.Store("encode ban", err)
	}
	if err := c.client.LPush(ctx, bansKey(chatID, userID), payload).Err(); err != nil {
		return nil, ngerrors.Store("insert ban", err)
	}
	return ban, nil
}

func (c *redisClient) AddUnban(ctx context.Context, chatID, userID, unbannedBy int64) error {
	id, err := c.nextID(ctx, "unbans")
	if err != nil {
		return ngerrors.Store("unban id", err)
	}
	payload, err := json.Marshal(db.UnbanRecord{
		ID:         id,
		ChatID:     chatID,
		UserID:     userID,
		UnbannedBy: unbannedBy,
		UnbannedAt: c.now(),
	})
	if err != nil {
		return ngerrors.Store("encode unban", err)
	}
	return ngerrors.Store("insert unban", c.client.LPush(ctx, unbansKey(chatID, userID), payload).Err())
}

func (c *redisClient) IsBanned(ctx context.Context, chatID, userID int64) (bool, error) {
	ban := &db.BanRecord{}
	found, err := c.latest(ctx, bansKey(chatID, userID), ban)
	if err != nil {
		return false, ngerrors.Store("get latest ban", err)
	}
	if !found || !ban.ActiveAt(c.now()) {
		return false, nil
	}

	unban := &db.UnbanRecord{}
	found, err = c.latest(ctx, unbansKey(chatID, userID), unban)
	if err != nil {
		return false, ngerrors.Store("get latest unban", err)
	}
	return !found || !ban.LiftedBy(unban), nil
}

// latest decodes the head of a newest-first list into dst.
func (c *redisClient) latest(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.LIndex(ctx, key, 0).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, dst)
}

var _ db.Store = (*redisClient)(nil)
