// Package aggregate joins several independent downstream calls into one
// result set. Branches run concurrently; optional branches degrade to a
// fallback on failure, while a required branch failure cancels its
// siblings and fails the join.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edgefront/bffgw/internal/observability"
)

// Branch is one downstream call in a fan-out.
type Branch struct {
	// Name keys the branch's value in the joined result.
	Name string

	// Optional marks the branch as non-fatal: a failure is replaced by
	// Fallback instead of failing the join.
	Optional bool

	// Fallback is the documented value used when an optional branch
	// fails. A nil fallback yields a nil value under the branch name.
	Fallback any

	// Run executes the downstream call.
	Run func(ctx context.Context) (any, error)
}

// Fanout executes branches concurrently.
type Fanout struct {
	logger  observability.Logger
	metrics *observability.Metrics
}

// FanoutOption is a functional option for configuring a Fanout.
type FanoutOption func(*Fanout)

// WithFanoutLogger sets the logger.
func WithFanoutLogger(logger observability.Logger) FanoutOption {
	return func(f *Fanout) {
		f.logger = logger
	}
}

// WithFanoutMetrics sets the metrics sink.
func WithFanoutMetrics(m *observability.Metrics) FanoutOption {
	return func(f *Fanout) {
		f.metrics = m
	}
}

// NewFanout creates a fan-out executor.
func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Join runs all branches concurrently and collects their values keyed by
// branch name. The join completes only when every branch has finished,
// succeeded or fallen back. A required branch failure cancels the
// remaining branches and is returned to the caller; the partial result map
// is discarded.
func (f *Fanout) Join(ctx context.Context, branches []Branch) (map[string]any, error) {
	results := make(map[string]any, len(branches))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)

	for _, branch := range branches {
		b := branch
		g.Go(func() error {
			value, err := b.Run(ctx)
			if err != nil {
				if !b.Optional {
					f.recordBranch(b.Name, "failed")
					f.logger.Warn("required branch failed",
						observability.String("branch", b.Name),
						observability.Error(err),
					)
					return fmt.Errorf("branch %s: %w", b.Name, err)
				}

				f.recordBranch(b.Name, "fallback")
				f.logger.Debug("optional branch failed, using fallback",
					observability.String("branch", b.Name),
					observability.Error(err),
				)
				value = b.Fallback
			} else {
				f.recordBranch(b.Name, "ok")
			}

			mu.Lock()
			results[b.Name] = value
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (f *Fanout) recordBranch(name, outcome string) {
	if f.metrics != nil {
		f.metrics.RecordFanoutBranch(name, outcome)
	}
}
