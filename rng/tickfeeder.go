package rng

import (
	"context"
	"time"

	"github.com/safing/fortuna/accumulator"
)

const tickDuration = 10 * time.Millisecond

// TickSource extracts entropy from the internal go scheduler: every tick it
// records the least significant bit of the current nanosecond unixtime. The
// more work the program does, the better the quality, as the scheduler cannot
// immediately run the goroutine when it's ready.
func TickSource() Source {
	return tickSource{}
}

type tickSource struct{}

func (tickSource) Name() string {
	return "ticks"
}

func (tickSource) Run(ctx context.Context, feeder *Feeder) error {
	var value int64
	var pushes int

	for {
		select {
		case <-time.After(tickDuration):
			value = (value << 1) | (time.Now().UnixNano() % 2)

			pushes++
			if pushes >= 64 {
				b, err := accumulator.PackInt(value, 64)
				if err != nil {
					return err
				}
				// credit far less than the collected 64 bits, the
				// low bits of time are correlated under light load
				if err := feeder.supply(ctx, b, 8); err != nil {
					return err
				}
				pushes = 0
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
