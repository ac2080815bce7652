package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/internal/planner"
	"github.com/haulplan/haulplan/internal/route"
)

// RouteSource lists routes that have no calculated metrics. Routes marked as failed are
// listed after the ones that have not failed yet.
type RouteSource interface {
	MissingMetrics(ctx context.Context, limit int) ([]*route.Route, error)
	MarkMetricsFailed(ctx context.Context, id int64) error
}

// Recalculator recalculates and stores the metrics of one route.
type Recalculator interface {
	Recalculate(ctx context.Context, driverID string, id int64) (*route.Route, error)
}

// BackfillJob recalculates routes stored without metrics, such as legacy routes that only
// carry a distance in kilometers or routes whose metrics write failed.
type BackfillJob struct {
	config  BackfillConfig
	source  RouteSource
	planner Recalculator
	logger  zerolog.Logger

	// Serializes runs so the ticker and a Pub/Sub trigger never overlap.
	running sync.Mutex

	mu    sync.RWMutex
	stats BackfillStats
}

// BackfillStats accumulates over the lifetime of a job.
type BackfillStats struct {
	Runs          int64
	Recalculated  int64
	Failed        int64
	Skipped       int64
	LastRunAt     time.Time
	LastRunTook   time.Duration
	TotalDuration time.Duration
}

// BackfillJobConfig holds the dependencies of a BackfillJob.
type BackfillJobConfig struct {
	Config  BackfillConfig
	Source  RouteSource
	Planner Recalculator
	Logger  zerolog.Logger
}

// NewBackfillJob creates a new backfill job.
func NewBackfillJob(cfg BackfillJobConfig) *BackfillJob {
	return &BackfillJob{
		config:  cfg.Config.withDefaults(),
		source:  cfg.Source,
		planner: cfg.Planner,
		logger:  cfg.Logger,
	}
}

// BackfillResult is the outcome of one run.
type BackfillResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Candidates   int
	Recalculated int
	Failed       int
	// Skipped routes have no stored coordinates and cannot be recalculated.
	Skipped int
	Errors  []BackfillError
}

// BackfillError records a route that failed to recalculate.
type BackfillError struct {
	RouteID int64
	Error   string
}

// Run recalculates up to BatchSize routes missing metrics. Routes are processed by a bounded
// pool of Concurrency workers.
func (j *BackfillJob) Run(ctx context.Context) (*BackfillResult, error) {
	j.running.Lock()
	defer j.running.Unlock()

	startTime := time.Now()
	result := &BackfillResult{StartTime: startTime}

	candidates, err := j.source.MissingMetrics(ctx, j.config.BatchSize)
	if err != nil {
		return nil, err
	}
	result.Candidates = len(candidates)

	j.logger.Info().
		Int("candidates", result.Candidates).
		Int("concurrency", j.config.Concurrency).
		Msg("starting metrics backfill")

	ids := make(chan int64, len(candidates))
	results := make(chan routeResult, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.backfillWorker(ctx, ids, results)
		}()
	}

	for _, r := range candidates {
		ids <- r.ID
	}
	close(ids)

	go func() {
		wg.Wait()
		close(results)
	}()

	for rr := range results {
		switch {
		case rr.err == nil:
			result.Recalculated++
		case errors.Is(rr.err, planner.ErrMissingCoordinates):
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors, BackfillError{RouteID: rr.id, Error: rr.err.Error()})
			j.markFailed(ctx, rr.id)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	j.record(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("recalculated", result.Recalculated).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("metrics backfill completed")

	return result, nil
}

// Loop runs the job every Interval until ctx is done. A zero Interval returns immediately.
func (j *BackfillJob) Loop(ctx context.Context) {
	if j.config.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error().Err(err).Msg("metrics backfill failed")
			}
		}
	}
}

type routeResult struct {
	id  int64
	err error
}

func (j *BackfillJob) backfillWorker(ctx context.Context, ids <-chan int64, results chan<- routeResult) {
	for id := range ids {
		select {
		case <-ctx.Done():
			results <- routeResult{id: id, err: ctx.Err()}
		default:
			results <- routeResult{id: id, err: j.recalculate(ctx, id)}
		}
	}
}

func (j *BackfillJob) recalculate(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	_, err := j.planner.Recalculate(ctx, planner.AnyDriver, id)
	if err != nil && !errors.Is(err, planner.ErrMissingCoordinates) {
		j.logger.Warn().Err(err).Int64("route_id", id).Msg("route recalculation failed")
	}
	return err
}

// markFailed sends a failed route to the back of the queue so the next batch reaches others.
// Routes interrupted by shutdown keep their place.
func (j *BackfillJob) markFailed(ctx context.Context, id int64) {
	if ctx.Err() != nil {
		return
	}
	if err := j.source.MarkMetricsFailed(ctx, id); err != nil {
		j.logger.Warn().Err(err).Int64("route_id", id).Msg("failed to mark route for backfill retry")
	}
}

func (j *BackfillJob) record(result *BackfillResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.Runs++
	j.stats.Recalculated += int64(result.Recalculated)
	j.stats.Failed += int64(result.Failed)
	j.stats.Skipped += int64(result.Skipped)
	j.stats.LastRunAt = result.EndTime
	j.stats.LastRunTook = result.Duration
	j.stats.TotalDuration += result.Duration
}

// Stats returns a copy of the accumulated statistics.
func (j *BackfillJob) Stats() BackfillStats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}
