package mapview

import (
	"context"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Prober checks that the map provider is usable.
type Prober interface {
	Probe(ctx context.Context) error
}

const defaultRecheckInterval = 5 * time.Minute

// ReadinessConfig holds configuration for map readiness.
type ReadinessConfig struct {
	Prober Prober

	// Configured is false when no provider key is set; the map then never becomes ready.
	Configured bool

	// Attempts is the total number of probes (default: 10).
	Attempts uint64

	// Delay between probes (default: 500ms).
	Delay time.Duration

	// Interval between rounds once Watch is running. Zero disables rechecks.
	Interval time.Duration

	Logger zerolog.Logger
}

// Readiness tracks whether map scenes can be drawn. Each round probes the provider a bounded
// number of times; a round in which every probe fails leaves the map not ready.
type Readiness struct {
	prober     Prober
	configured bool
	attempts   uint64
	delay      time.Duration
	interval   time.Duration
	logger     zerolog.Logger

	ready atomic.Bool
	done  chan struct{}
}

// NewReadiness creates a readiness tracker. Call Run to start probing.
func NewReadiness(cfg ReadinessConfig) *Readiness {
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 10
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Readiness{
		prober:     cfg.Prober,
		configured: cfg.Configured,
		attempts:   attempts,
		delay:      delay,
		interval:   cfg.Interval,
		logger:     cfg.Logger,
		done:       make(chan struct{}),
	}
}

// Run probes until one probe succeeds, the attempts run out or ctx ends. It returns the final
// readiness and must be called once.
func (r *Readiness) Run(ctx context.Context) bool {
	defer close(r.done)
	return r.check(ctx)
}

// Watch runs the startup round, then repeats a bounded round every Interval until ctx ends.
// A provider that recovers after startup makes the map ready again; one that goes away
// makes it unavailable.
func (r *Readiness) Watch(ctx context.Context) {
	r.Run(ctx)
	if !r.configured || r.prober == nil || r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

// check runs one bounded round of probes and stores the outcome.
func (r *Readiness) check(ctx context.Context) bool {
	if !r.configured || r.prober == nil {
		r.logger.Debug().Msg("map provider not configured, map stays unavailable")
		return false
	}

	var attempt int
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), r.attempts-1),
		ctx,
	)
	err := backoff.Retry(func() error {
		attempt++
		return r.prober.Probe(ctx)
	}, policy)
	if err != nil {
		if r.ready.Swap(false) {
			r.logger.Warn().Err(err).Int("attempts", attempt).Msg("map provider lost")
		} else {
			r.logger.Debug().Err(err).Int("attempts", attempt).Msg("map provider unavailable after retries")
		}
		return false
	}

	if !r.ready.Swap(true) {
		r.logger.Info().Int("attempts", attempt).Msg("map provider ready")
	}
	return true
}

// Done is closed when Run returns.
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// Ready reports whether the map can be drawn.
func (r *Readiness) Ready() bool {
	return r.ready.Load()
}

// NewScene returns a scene carrying the current readiness.
func (r *Readiness) NewScene() *Scene {
	return NewScene(r.Ready())
}

// ReadinessConfigFromEnv reads MAP_READY_ATTEMPTS, MAP_READY_DELAY and MAP_READY_INTERVAL.
// Unset or invalid values keep the defaults.
func ReadinessConfigFromEnv() ReadinessConfig {
	cfg := ReadinessConfig{Interval: defaultRecheckInterval}
	if d, err := time.ParseDuration(os.Getenv("MAP_READY_INTERVAL")); err == nil && d > 0 {
		cfg.Interval = d
	}
	if v, err := strconv.ParseUint(os.Getenv("MAP_READY_ATTEMPTS"), 10, 64); err == nil {
		cfg.Attempts = v
	}
	if d, err := time.ParseDuration(os.Getenv("MAP_READY_DELAY")); err == nil && d > 0 {
		cfg.Delay = d
	}
	return cfg
}
