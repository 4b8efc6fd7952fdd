// Package rng provides a feedable CSPRNG for environments without a
// trustworthy native entropy source.
//
// It combines an entropy accumulator with a fortuna generator. By default the
// process-wide instance is fed by three sources:
// - the OS RNG
// - goroutine scheduling jitter
// - host statistics (cpu, memory, load)
//
// The RNG can also be easily fed with additional sources, and entropy can be
// exchanged with other execution contexts via registered worker channels.
package rng

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/tevino/abool"

	"github.com/safing/portbase/container"
	"github.com/safing/portbase/log"

	"github.com/safing/fortuna/accumulator"
	"github.com/safing/fortuna/blockcipher"
	"github.com/safing/fortuna/generator"
)

// DefaultReseedAfterBytes forces a reseed attempt after this much output has
// been generated from a single seed.
const DefaultReseedAfterBytes = 1 << 20

// Options adjusts a new Rng. Zero values are replaced with defaults.
type Options struct {
	// Cipher is the block cipher used by the generator, AES-128 by default.
	Cipher blockcipher.Cipher

	// MinPoolEntropy and MinReseedInterval configure the accumulator's
	// reseed policy, see the accumulator package for the defaults.
	MinPoolEntropy    int64
	MinReseedInterval time.Duration

	// ReseedAfterBytes forces a reseed attempt after the given amount of
	// generated output, if any entropy is buffered. Set to a negative
	// value to disable.
	ReseedAfterBytes int64
}

// Rng combines an entropy accumulator with a fortuna generator behind a
// single lock, so that output generation never observes a partially updated
// generator state. All methods are safe for concurrent use.
type Rng struct {
	lock sync.Mutex
	gen  *generator.Generator
	acc  *accumulator.Accumulator

	bytesSinceReseed int64
	reseedAfterBytes int64
	weakSeed         *abool.AtomicBool

	workersLock sync.Mutex
	workers     map[WorkerChannel]chan struct{}
}

// New returns a new Rng using the given cipher and the default reseed policy.
func New(cipher blockcipher.Cipher) *Rng {
	return NewWithOptions(Options{Cipher: cipher})
}

// NewWithOptions returns a new Rng with the given options.
func NewWithOptions(opts Options) *Rng {
	if opts.Cipher == nil {
		opts.Cipher = blockcipher.AES128()
	}
	if opts.ReseedAfterBytes == 0 {
		opts.ReseedAfterBytes = DefaultReseedAfterBytes
	}

	return &Rng{
		gen: generator.New(opts.Cipher),
		acc: accumulator.NewWithConfig(accumulator.Config{
			MinPoolEntropy:   opts.MinPoolEntropy,
			MinDrainInterval: opts.MinReseedInterval,
		}),
		reseedAfterBytes: opts.ReseedAfterBytes,
		weakSeed:         abool.New(),
		workers:          make(map[WorkerChannel]chan struct{}),
	}
}

// Collect feeds entropy to the accumulator, crediting the default estimate of
// one bit per byte, and forwards it to registered worker channels. It never
// blocks and may be called from non-blocking event handlers.
func (r *Rng) Collect(data []byte) {
	r.collect(data, int64(len(data)), true)
}

// CollectWithEstimate feeds entropy to the accumulator with the declared
// entropy estimate in bits and forwards it to registered worker channels.
func (r *Rng) CollectWithEstimate(data []byte, estimatedBits int64) {
	r.collect(data, estimatedBits, true)
}

// CollectInt packs the lowest bits of value most-significant byte first and
// collects the result. bits must be a positive multiple of 8 and at most 64.
func (r *Rng) CollectInt(value int64, bits int) error {
	buf, err := accumulator.PackInt(value, bits)
	if err != nil {
		return err
	}
	r.collect(buf, int64(len(buf)), true)
	return nil
}

func (r *Rng) collect(data []byte, estimatedBits int64, forward bool) {
	if len(data) == 0 {
		return
	}
	r.acc.CollectWithEstimate(data, estimatedBits)
	if forward {
		r.forwardEntropy(data)
	}
}

// GetBytes returns n pseudo random bytes. A reseed is performed first if one
// is due. The call never blocks waiting for entropy: an unseeded generator is
// seeded from whatever is buffered, or from bootstrap material as a last
// resort, and the weak-seeded state is observable via WeakSeeded.
func (r *Rng) GetBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("rng: invalid byte count %d", n)
	}
	if n == 0 {
		return []byte{}, nil
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.reseedIfNeeded(); err != nil {
		return nil, err
	}

	b, err := r.gen.PseudoRandomData(uint(n))
	if err != nil {
		return nil, err
	}
	r.bytesSinceReseed += int64(n)
	return b, nil
}

// reseedIfNeeded applies the reseed policy. Callers must hold r.lock.
func (r *Rng) reseedIfNeeded() error {
	switch {
	case r.acc.ReseedDue():
		if err := r.gen.Reseed(r.acc.DrainForReseed()); err != nil {
			return err
		}
		r.weakSeed.UnSet()
		r.bytesSinceReseed = 0

	case !r.gen.Seeded():
		seed := bootstrapSeed()
		if r.acc.Buffered() > 0 {
			seed = r.acc.DrainForReseed()
		} else {
			log.Warning("rng: no entropy collected yet, seeding from bootstrap material")
		}
		if err := r.gen.Reseed(seed); err != nil {
			return err
		}
		r.weakSeed.Set()
		r.bytesSinceReseed = 0

	case r.reseedAfterBytes > 0 && r.bytesSinceReseed >= r.reseedAfterBytes && r.acc.Buffered() > 0:
		if err := r.gen.Reseed(r.acc.DrainForReseed()); err != nil {
			return err
		}
		r.bytesSinceReseed = 0
	}
	return nil
}

// WeakSeeded returns whether the generator state is currently backed only by
// low quality seed material. The flag is cleared as soon as enough genuine
// entropy has been collected and a regular reseed has occurred.
func (r *Rng) WeakSeeded() bool {
	return r.weakSeed.IsSet()
}

// ReseedCount returns how often the generator has been reseeded.
func (r *Rng) ReseedCount() uint64 {
	return r.gen.ReseedCount()
}

// bootstrapSeed gathers best-effort seed material from the process
// environment: wall clock, process id and scheduler state. This is not
// entropy in any meaningful sense, it only keeps early output unique across
// processes until real entropy arrives.
func bootstrapSeed() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano()))

	c := container.New(buf)
	c.AppendNumber(uint64(os.Getpid()))
	c.AppendNumber(uint64(runtime.NumGoroutine()))
	c.AppendNumber(uint64(runtime.NumCPU()))
	return c.CompileData()
}
