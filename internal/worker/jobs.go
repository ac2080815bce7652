package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Job types carried in trigger messages.
const (
	JobMetricsBackfill = "metrics_backfill"
	JobHealthCheck     = "health_check"
)

var (
	// ErrUnknownJob is returned for a message whose job type has no handler.
	ErrUnknownJob = errors.New("unknown job type")
	// ErrMalformedMessage is returned for a payload that is not a job message.
	ErrMalformedMessage = errors.New("malformed job message")
)

// Message is the JSON payload of a job trigger.
type Message struct {
	JobType string `json:"job_type"`
}

// Prober checks that the routing provider answers.
type Prober interface {
	Probe(ctx context.Context) error
}

// Jobs dispatches trigger messages to the backfill job or the provider probe.
type Jobs struct {
	backfill *BackfillJob
	prober   Prober
	logger   zerolog.Logger
}

// NewJobs creates a dispatcher. A nil prober fails health checks.
func NewJobs(backfill *BackfillJob, prober Prober, logger zerolog.Logger) *Jobs {
	return &Jobs{backfill: backfill, prober: prober, logger: logger}
}

// Handle decodes a message and runs its job.
func (j *Jobs) Handle(ctx context.Context, data []byte) (string, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobMetricsBackfill:
		return msg.JobType, j.runBackfill(ctx)
	case JobHealthCheck:
		return msg.JobType, j.healthCheck(ctx)
	default:
		return msg.JobType, fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (j *Jobs) runBackfill(ctx context.Context) error {
	result, err := j.backfill.Run(ctx)
	if err != nil {
		return fmt.Errorf("listing routes: %w", err)
	}
	// Redeliver when most of the batch failed.
	if result.Failed > result.Recalculated {
		return fmt.Errorf("too many backfill failures: %d/%d", result.Failed, result.Candidates)
	}
	return nil
}

func (j *Jobs) healthCheck(ctx context.Context) error {
	if j.prober == nil {
		return errors.New("routing provider not configured")
	}
	if err := j.prober.Probe(ctx); err != nil {
		return fmt.Errorf("provider probe: %w", err)
	}
	j.logger.Debug().Msg("health check passed")
	return nil
}
