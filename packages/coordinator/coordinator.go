// Package coordinator fans link targets out to the classifier while
// preserving input order: results[i] always answers for targets[i].
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"deadref/packages/domain"
	"deadref/packages/metrics"
)

// Classifier yields the verdict for one link target. Implementations must be
// safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, target domain.LinkTarget) domain.ClassificationResult
}

type Options struct {
	Parallel   bool
	MaxWorkers int
	ChunkSize  int
	Delay      time.Duration
}

type Coordinator struct {
	classifier Classifier
	opts       Options
}

func New(classifier Classifier, opts Options) *Coordinator {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 20
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100
	}
	return &Coordinator{classifier: classifier, opts: opts}
}

// Run classifies every target and returns one result per target, in input
// order. Individual failures never abort the batch; targets left unprobed by
// cancellation come back as not_checked so the contract still holds.
func (c *Coordinator) Run(ctx context.Context, targets []domain.LinkTarget) []domain.ClassificationResult {
	if len(targets) == 0 {
		return nil
	}
	slog.Info("Dispatching link targets", "count", len(targets), "parallel", c.opts.Parallel)
	if c.opts.Parallel {
		return c.runParallel(ctx, targets)
	}
	return c.runSequential(ctx, targets)
}

func (c *Coordinator) runSequential(ctx context.Context, targets []domain.LinkTarget) []domain.ClassificationResult {
	results := make([]domain.ClassificationResult, len(targets))
	limiter := rate.NewLimiter(rate.Every(c.opts.Delay), 1)

	for i, target := range targets {
		if err := limiter.Wait(ctx); err != nil {
			fillNotChecked(results, targets, i)
			return results
		}
		results[i] = c.classifyOne(ctx, target)
	}
	return results
}

func (c *Coordinator) runParallel(ctx context.Context, targets []domain.LinkTarget) []domain.ClassificationResult {
	results := make([]domain.ClassificationResult, len(targets))

	// Chunks run back to back on a fresh bounded group, so the in-flight
	// ceiling holds across chunk boundaries.
	for start := 0; start < len(targets); start += c.opts.ChunkSize {
		if ctx.Err() != nil {
			fillNotChecked(results, targets, start)
			return results
		}
		end := min(start+c.opts.ChunkSize, len(targets))

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.MaxWorkers)
		for i := start; i < end; i++ {
			idx := i
			currentTarget := targets[i]
			g.Go(func() error {
				// Each worker owns exactly one result slot.
				results[idx] = c.classifyOne(gCtx, currentTarget)
				return nil
			})
		}
		_ = g.Wait()
		slog.Debug("Chunk classified", "from", start, "to", end)
	}
	return results
}

// classifyOne shields the batch from a misbehaving classification: a panic
// becomes an error verdict for that target alone.
func (c *Coordinator) classifyOne(ctx context.Context, target domain.LinkTarget) (res domain.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Classification panicked", "url", target.OriginalURL, "panic", r)
			res = domain.ClassificationResult{
				Target:    target,
				Status:    domain.StatusError,
				Detail:    fmt.Sprintf("internal fault: %v", r),
				CheckedAt: time.Now().UTC(),
			}
		}
	}()

	metrics.ChecksInFlight.Inc()
	defer metrics.ChecksInFlight.Dec()
	return c.classifier.Classify(ctx, target)
}

func fillNotChecked(results []domain.ClassificationResult, targets []domain.LinkTarget, from int) {
	for i := from; i < len(results); i++ {
		results[i] = domain.ClassificationResult{
			Target:    targets[i],
			Status:    domain.StatusNotChecked,
			Detail:    "run cancelled before this target was probed",
			CheckedAt: time.Now().UTC(),
		}
	}
}
