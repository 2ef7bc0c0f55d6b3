// Package statusfeed produces device status readings for the statusd daemon.
package statusfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Reading is a single device status observation.
type Reading struct {
	ID     string    `json:"id"`
	Device string    `json:"device"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// EmitFunc consumes readings as a source produces them.
type EmitFunc func(Reading)

// Source streams readings into an emit callback until its context ends.
type Source interface {
	// Run blocks and produces readings. It returns nil after context
	// cancellation and an error only on unrecoverable failure.
	Run(ctx context.Context, emit EmitFunc) error
}

// NoopSource produces nothing. It is useful for wiring tests and for
// deployments that only replay externally injected readings.
type NoopSource struct{}

// Run blocks until the context is cancelled.
func (NoopSource) Run(ctx context.Context, _ EmitFunc) error {
	<-ctx.Done()

	return nil
}

// simulatedStatuses is the cycle every simulated device walks through.
var simulatedStatuses = []string{"online", "degraded", "offline"}

// Simulator emits one synthetic reading per tick, round-robining over its
// device set. Each full pass over the devices advances the status cycle.
type Simulator struct {
	devices  []string
	interval time.Duration
	clock    clock.Clock
}

// NewSimulator creates a simulator producing a reading every interval.
// A nil clock falls back to the wall clock.
func NewSimulator(devices []string, interval time.Duration, clk clock.Clock) (*Simulator, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("new simulator: at least one device is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("new simulator: interval must be > 0")
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Simulator{
		devices:  append([]string(nil), devices...),
		interval: interval,
		clock:    clk,
	}, nil
}

// Run emits readings until the context is cancelled.
func (s *Simulator) Run(ctx context.Context, emit EmitFunc) error {
	if emit == nil {
		return fmt.Errorf("run simulator: emit callback is required")
	}

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			emit(s.readingAt(tick))
			tick++
		}
	}
}

func (s *Simulator) readingAt(tick int) Reading {
	device := s.devices[tick%len(s.devices)]
	status := simulatedStatuses[(tick/len(s.devices))%len(simulatedStatuses)]

	return Reading{
		ID:     uuid.New().String(),
		Device: device,
		Status: status,
		At:     s.clock.Now().UTC(),
	}
}

var (
	_ Source = (*Simulator)(nil)
	_ Source = NoopSource{}
)
