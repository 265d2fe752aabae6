package bot

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/ngmod/internal/infra"
)

const shardBuffer = 64

// Processor handles a single update.
type Processor interface {
	Process(ctx context.Context, u *api.Update) error
}

// Dispatcher fans updates out to a fixed set of workers. All updates of one
// chat land on the same worker, so they are handled in arrival order while
// different chats proceed in parallel.
type Dispatcher struct {
	processor Processor
	workers   int
	logger    *log.Entry
}

func NewDispatcher(processor Processor, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		processor: processor,
		workers:   workers,
		logger:    log.WithField("object", "Dispatcher"),
	}
}

// Run consumes updates until the channel closes or ctx is done, then waits
// for the workers to finish what they already picked up.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan api.Update) error {
	shards := make([]chan api.Update, d.workers)
	for i := range shards {
		shards[i] = make(chan api.Update, shardBuffer)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		id := fmt.Sprintf("shard_%d", i)
		g.Go(func() error {
			for u := range shard {
				d.process(gctx, id, u)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, shard := range shards {
				close(shard)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return nil
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				select {
				case shards[ShardFor(chatIDOf(&u), d.workers)] <- u:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	return g.Wait()
}

func (d *Dispatcher) process(ctx context.Context, id string, u api.Update) {
	defer infra.Recover(id)
	if err := d.processor.Process(ctx, &u); err != nil {
		if ctx.Err() != nil {
			d.logger.WithField("update_id", u.UpdateID).Debug("update dropped on shutdown")
			return
		}
		d.logger.WithFields(log.Fields{
			"update_id": u.UpdateID,
			"error":     err.Error(),
		}).Error("cant process update")
	}
}

// ShardFor maps a chat to one of n workers.
func ShardFor(chatID int64, n int) int {
	if n <= 1 {
		return 0
	}
	return int(uint64(chatID) % uint64(n))
}

func chatIDOf(u *api.Update) int64 {
	if chat := u.FromChat(); chat != nil {
		return chat.ID
	}
	return 0
}
