package rng

import (
	"context"
	"fmt"
)

// Source is an environment specific entropy harvester. Sources run outside
// the RNG core: they decide themselves how to sample their environment and
// how to handle probe failures, the core only consumes what they supply.
type Source interface {
	// Name returns the name of the source, for logging and worker naming.
	Name() string

	// Run gathers entropy and supplies it to the given feeder until the
	// context is canceled.
	Run(ctx context.Context, feeder *Feeder) error
}

// RunSource attaches the given source to this Rng and runs it until the
// context is canceled. It blocks, callers wanting a background source should
// run it in a worker.
func (r *Rng) RunSource(ctx context.Context, src Source) error {
	return r.RunSourceWithMinEntropy(ctx, src, DefaultMinFeedEntropy)
}

// RunSourceWithMinEntropy is like RunSource with a custom feed threshold.
func (r *Rng) RunSourceWithMinEntropy(ctx context.Context, src Source, minEntropy int64) error {
	feeder := r.NewFeederWithMinEntropy(minEntropy)
	defer feeder.CloseFeeder()

	if err := src.Run(ctx, feeder); err != nil && ctx.Err() == nil {
		return fmt.Errorf("rng: entropy source %s failed: %w", src.Name(), err)
	}
	return ctx.Err()
}
