package hibiki

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
)

// config stores resolved asynchronous dispatch settings after option application.
type config struct {
	logger       *slog.Logger
	clock        clock.Clock
	runner       Runner
	onAsyncError func(context.Context, string, error)
}

// Option mutates construction configuration for TimedEmitter and Dispatcher.
type Option func(*config)

// defaultConfig returns production-safe defaults: wall-clock scheduling,
// detached goroutine execution, and error reporting through the default logger.
func defaultConfig() config {
	logger := slog.Default()

	return config{
		logger: logger,
		clock:  clock.New(),
		onAsyncError: func(ctx context.Context, scope string, err error) {
			logger.ErrorContext(ctx, "hibiki async error", "scope", scope, "error", err)
		},
	}
}

// WithLogger configures the logger used by the default async error sink.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			return
		}

		cfg.logger = logger
		cfg.onAsyncError = func(ctx context.Context, scope string, err error) {
			logger.ErrorContext(ctx, "hibiki async error", "scope", scope, "error", err)
		}
	}
}

// WithErrorHandler configures asynchronous dispatch error reporting.
func WithErrorHandler(handler func(context.Context, string, error)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// WithClock configures the time source used to schedule delayed dispatch.
// Tests inject a mock clock to make delay semantics deterministic.
func WithClock(clk clock.Clock) Option {
	return func(cfg *config) {
		if clk != nil {
			cfg.clock = clk
		}
	}
}

// WithRunner routes delayed dispatch through a bounded task runner instead
// of one detached goroutine per task.
func WithRunner(runner Runner) Option {
	return func(cfg *config) {
		if runner != nil {
			cfg.runner = runner
		}
	}
}
