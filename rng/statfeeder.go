package rng

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"

	"github.com/safing/portbase/container"
	"github.com/safing/portbase/log"
)

const statSourceInterval = 10 * time.Second

// StatSource samples host statistics - cpu times, memory usage and load
// averages. Individually these are guessable, but their combined low bits
// drift with everything else running on the host. Probes that fail on the
// current platform are skipped.
func StatSource() Source {
	return statSource{}
}

type statSource struct{}

func (statSource) Name() string {
	return "host stats"
}

func (statSource) Run(ctx context.Context, feeder *Feeder) error {
	for {
		sample := container.New()

		if avg, err := load.Avg(); err == nil {
			sample.AppendNumber(math.Float64bits(avg.Load1))
			sample.AppendNumber(math.Float64bits(avg.Load5))
			sample.AppendNumber(math.Float64bits(avg.Load15))
		} else {
			log.Tracef("rng: load average probe failed: %s", err)
		}

		if vm, err := mem.VirtualMemory(); err == nil {
			sample.AppendNumber(vm.Available)
			sample.AppendNumber(vm.Free)
			sample.AppendNumber(vm.Used)
		} else {
			log.Tracef("rng: memory probe failed: %s", err)
		}

		if times, err := cpu.Times(false); err == nil {
			for _, t := range times {
				sample.AppendNumber(math.Float64bits(t.User))
				sample.AppendNumber(math.Float64bits(t.System))
				sample.AppendNumber(math.Float64bits(t.Idle))
			}
		} else {
			log.Tracef("rng: cpu times probe failed: %s", err)
		}

		if sample.Length() > 0 {
			if err := feeder.supply(ctx, sample.CompileData(), 4); err != nil {
				return err
			}
		}

		select {
		case <-time.After(statSourceInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
