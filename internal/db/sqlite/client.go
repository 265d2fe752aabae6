package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/ngmod/internal/db"
	"github.com/iamwavecut/ngmod/resources"
)

const (
	maxOpenConns = 16
	pragmas      = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
	now   db.Clock
}

type Option func(*sqliteClient)

// WithClock replaces the wall clock used for timestamps and ban expiry.
func WithClock(clock db.Clock) Option {
	return func(c *sqliteClient) {
		if clock != nil {
			c.now = clock
		}
	}
}

func NewSQLiteClient(ctx context.Context, dir, name string, opts ...Option) (*sqliteClient, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create db dir")
	}
	dsn := "file:" + filepath.Join(dir, name) + "?" + pragmas
	dbx, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	dbx.SetMaxOpenConns(maxOpenConns)
	if err := dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, errors.Wrap(err, "ping db")
	}

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, errors.Wrap(err, "migrate up")
	}
	if n > 0 {
		log.WithField("object", "sqlite").Infof("applied %d migrations", n)
	}

	client := &sqliteClient{
		db: dbx,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}

var _ db.Store = (*sqliteClient)(nil)
