package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks run once the server has stopped accepting requests. They
// run in reverse registration order, like deferred calls, so resources
// registered early outlive those that depend on them.
type ShutdownHooks struct {
	hooks []hook
}

// Add registers a hook. Nil hooks are ignored with a warning.
func (s *ShutdownHooks) Add(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// AddWait registers a hook that blocks until w has drained, or the shutdown
// deadline passes.
func (s *ShutdownHooks) AddWait(name string, w interface{ Wait() }) {
	if w == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.Add(name, func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			w.Wait()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting: %w", ctx.Err())
		}
	})
}

// Execute runs every hook, continuing past failures, and returns the
// failures joined.
func (s *ShutdownHooks) Execute(ctx context.Context) error {
	var errs []error

	for i := len(s.hooks) - 1; i >= 0; i-- {
		h := s.hooks[i]
		hookLog := log.Ctx(ctx).With().Str("hook", h.name).Logger()

		hookLog.Info().Msg("shutdown started")
		if err := h.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("shutdown failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		hookLog.Info().Msg("shutdown complete")
	}

	return errors.Join(errs...)
}
