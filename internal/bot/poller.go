package bot

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultRetryDelay = 3 * time.Second

// Poller long-polls the Bot API and feeds the dispatcher. A failed poll is
// logged and retried from the last seen offset, so no update is handled twice.
type Poller struct {
	source     UpdatesSource
	dispatcher *Dispatcher
	timeout    int
	buffer     int
	retryDelay time.Duration
	offset     int

	cancel context.CancelFunc
	done   chan struct{}
	logger *log.Entry
}

// NewPoller polls with a long-poll timeout in seconds.
func NewPoller(source UpdatesSource, dispatcher *Dispatcher, timeout, buffer int) *Poller {
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		timeout:    timeout,
		buffer:     buffer,
		retryDelay: defaultRetryDelay,
		logger:     log.WithField("object", "Poller"),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	_ = ctx
	if p.cancel != nil {
		return errors.New("poller already started")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(runCtx)
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	out := make(chan api.Update)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		if err := p.dispatcher.Run(ctx, out); err != nil {
			p.logger.WithField("error", err.Error()).Error("dispatcher stopped")
		}
	}()
	defer func() {
		close(out)
		<-dispatched
	}()

	for {
		updates, errs := GetUpdatesChans(ctx, p.source, p.buffer, p.updateConfig())
		err := p.forward(ctx, updates, errs, out)
		if ctx.Err() != nil {
			p.logger.Debug("polling stopped")
			return
		}
		if err != nil {
			p.logger.WithField("error", err.Error()).Error("bot api get updates error")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryDelay):
		}
	}
}

func (p *Poller) forward(ctx context.Context, updates api.UpdatesChannel, errs chan error, out chan<- api.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return <-errs
			}
			p.offset = u.UpdateID + 1
			select {
			case out <- u:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (p *Poller) updateConfig() api.UpdateConfig {
	config := api.NewUpdate(p.offset)
	config.Timeout = p.timeout
	config.AllowedUpdates = []string{"message", "edited_message"}
	return config
}
