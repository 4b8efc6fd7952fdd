package rng

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"
)

// osSourceInterval paces how often the OS RNG is sampled. The OS RNG is only
// one contributor here, there is no point in draining it continuously.
const osSourceInterval = 10 * time.Second

// OSSource reads entropy from the operating system RNG. On platforms with a
// healthy kernel RNG this is by far the strongest default source.
func OSSource() Source {
	return osSource{}
}

type osSource struct{}

func (osSource) Name() string {
	return "os"
}

func (osSource) Run(ctx context.Context, feeder *Feeder) error {
	for {
		osEntropy := make([]byte, 32)
		n, err := rand.Read(osEntropy)
		if err != nil {
			return fmt.Errorf("could not read entropy from os: %w", err)
		}
		if n != len(osEntropy) {
			return fmt.Errorf("could not read enough entropy from os: got only %d bytes instead of %d", n, len(osEntropy))
		}

		if err := feeder.supply(ctx, osEntropy, int64(n*8)); err != nil {
			return err
		}

		select {
		case <-time.After(osSourceInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
