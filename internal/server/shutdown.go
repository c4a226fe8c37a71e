package server

import (
	"context"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks collects cleanup functions to run when the process stops.
// Hooks run in registration order, and a failing hook never prevents the
// rest from running.
type ShutdownHooks struct {
	hooks []hook
}

// AddContext registers a hook that receives the shutdown context, which may
// carry a deadline. Nil hooks are ignored with a warning.
func (s *ShutdownHooks) AddContext(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// Add registers a hook that needs no context.
func (s *ShutdownHooks) Add(name string, fn func() error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error {
		return fn()
	})
}

// AddClose registers a hook for any resource with a Close method.
func (s *ShutdownHooks) AddClose(name string, closer interface{ Close() }) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error { closer.Close(); return nil })
}

// Execute runs the registered hooks in order, logging each outcome. Hook
// failures are logged and skipped over.
func (s *ShutdownHooks) Execute(ctx context.Context) {
	l := log.Ctx(ctx)
	for _, h := range s.hooks {
		hookLog := l.With().Str("hook", h.name).Logger()

		hookLog.Info().Msg("shutdown started")
		if err := h.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("shutdown failed")
		} else {
			hookLog.Info().Msg("shutdown complete")
		}
	}
}
