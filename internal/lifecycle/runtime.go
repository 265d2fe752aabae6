package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type namedComponent struct {
	name string
	Component
}

// Runtime starts components in registration order and stops them in reverse.
type Runtime struct {
	components []namedComponent
	logger     *log.Entry
}

func NewRuntime() *Runtime {
	return &Runtime{logger: log.WithField("object", "Runtime")}
}

func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, namedComponent{name: name, Component: component})
}

func (r *Runtime) Start(ctx context.Context) error {
	started := make([]namedComponent, 0, len(r.components))
	for _, component := range r.components {
		if err := component.Start(ctx); err != nil {
			_ = r.stopComponents(ctx, started)
			return fmt.Errorf("start %s: %w", component.name, err)
		}
		r.logger.WithField("component", component.name).Debug("started")
		started = append(started, component)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	return r.stopComponents(ctx, r.components)
}

// Run starts every component, blocks until ctx is done and then stops them
// within shutdownTimeout.
func (r *Runtime) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return r.Stop(stopCtx)
}

func (r *Runtime) stopComponents(ctx context.Context, components []namedComponent) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		if err := component.Stop(ctx); err != nil {
			r.logger.WithField("component", component.name).WithField("error", err.Error()).Warn("stop failed")
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %s: %w", component.name, err))
			continue
		}
		r.logger.WithField("component", component.name).Debug("stopped")
	}
	return stopErr
}
