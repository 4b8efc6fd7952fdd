package rng

import (
	"context"

	"github.com/tevino/abool"

	"github.com/safing/portbase/container"

	"github.com/safing/fortuna/accumulator"
)

// DefaultMinFeedEntropy is the estimated entropy in bits a Feeder batches up
// before handing its buffer to the accumulator.
const DefaultMinFeedEntropy = 256

// A Feeder batches entropy from a single source before passing it on to the
// RNG, so that many tiny samples are compressed into one pool entry.
type Feeder struct {
	rng          *Rng
	input        chan *entropyData
	entropy      int64
	needsEntropy *abool.AtomicBool
	buffer       *container.Container
	minEntropy   int64
	stop         chan struct{}
}

type entropyData struct {
	data    []byte
	entropy int64
}

// NewFeeder returns a new entropy Feeder attached to this Rng.
func (r *Rng) NewFeeder() *Feeder {
	return r.NewFeederWithMinEntropy(DefaultMinFeedEntropy)
}

// NewFeederWithMinEntropy returns a new entropy Feeder that feeds its batch to
// the Rng once the given estimated entropy in bits has been gathered.
func (r *Rng) NewFeederWithMinEntropy(minEntropy int64) *Feeder {
	f := &Feeder{
		rng:          r,
		input:        make(chan *entropyData),
		needsEntropy: abool.NewBool(true),
		buffer:       container.New(),
		minEntropy:   minEntropy,
		stop:         make(chan struct{}),
	}
	go f.run()
	return f
}

// NeedsEntropy returns whether the feeder is currently gathering entropy.
func (f *Feeder) NeedsEntropy() bool {
	return f.needsEntropy.IsSet()
}

// SupplyEntropy supplies entropy to the Feeder, it will block until the
// Feeder has read from it.
func (f *Feeder) SupplyEntropy(data []byte, estimatedBits int64) {
	f.input <- &entropyData{
		data:    data,
		entropy: estimatedBits,
	}
}

// SupplyEntropyIfNeeded supplies entropy to the Feeder, but will not block if
// no entropy is currently needed.
func (f *Feeder) SupplyEntropyIfNeeded(data []byte, estimatedBits int64) {
	if !f.needsEntropy.IsSet() {
		return
	}

	select {
	case f.input <- &entropyData{
		data:    data,
		entropy: estimatedBits,
	}:
	default:
	}
}

// SupplyEntropyAsInt supplies entropy to the Feeder, it will block until the
// Feeder has read from it.
func (f *Feeder) SupplyEntropyAsInt(n int64, estimatedBits int64) {
	b, err := accumulator.PackInt(n, 64)
	if err != nil {
		return
	}
	f.SupplyEntropy(b, estimatedBits)
}

// SupplyEntropyAsIntIfNeeded supplies entropy to the Feeder, but will not
// block if no entropy is currently needed.
func (f *Feeder) SupplyEntropyAsIntIfNeeded(n int64, estimatedBits int64) {
	if !f.needsEntropy.IsSet() { // avoid allocating a slice if possible
		return
	}

	b, err := accumulator.PackInt(n, 64)
	if err != nil {
		return
	}
	f.SupplyEntropyIfNeeded(b, estimatedBits)
}

// supply hands entropy to the feeder while honoring context cancellation.
// Meant for source loops that must wind down on shutdown.
func (f *Feeder) supply(ctx context.Context, data []byte, estimatedBits int64) error {
	select {
	case f.input <- &entropyData{
		data:    data,
		entropy: estimatedBits,
	}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseFeeder stops the feed processing - the responsible goroutine exits.
func (f *Feeder) CloseFeeder() {
	close(f.stop)
}

func (f *Feeder) run() {
	defer f.needsEntropy.UnSet()

	for {
		// gather
		f.needsEntropy.Set()
	gather:
		for {
			select {
			case newEntropy := <-f.input:
				if newEntropy != nil {
					f.buffer.Append(newEntropy.data)
					f.entropy += newEntropy.entropy
					if f.entropy >= f.minEntropy {
						break gather
					}
				}
			case <-f.stop:
				return
			}
		}
		// feed
		f.needsEntropy.UnSet()
		f.rng.CollectWithEstimate(f.buffer.CompileData(), f.entropy)
		f.buffer = container.New()
		f.entropy = 0
	}
}
