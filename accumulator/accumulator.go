// Package accumulator implements the fortuna entropy accumulator: a fixed set
// of entropy pools that buffer unpredictable input until it is compressed
// into seed material for the generator.
package accumulator

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safing/portbase/container"
)

// NumPools is the number of entropy pools. Pool k is drained on every 2^k-th
// reseed, so the last pool is touched so rarely that it defeats even an
// attacker who can predict most collected input.
const NumPools = 32

// Defaults for the reseed policy.
const (
	// DefaultMinPoolEntropy is the estimated entropy in bits that pool 0
	// must hold before a reseed is considered worthwhile.
	DefaultMinPoolEntropy = 128

	// DefaultMinDrainInterval rate-limits reseeding, so that an attacker
	// cannot flush the pools with a flood of cheap reseed requests.
	DefaultMinDrainInterval = 100 * time.Millisecond
)

// Config adjusts the reseed policy of an Accumulator. Zero values are
// replaced with the package defaults.
type Config struct {
	MinPoolEntropy   int64
	MinDrainInterval time.Duration
}

// Accumulator collects entropy into NumPools pools. Collecting may happen
// concurrently from independent call sites, draining is serialized.
type Accumulator struct {
	next  uint32
	pools [NumPools]pool

	drainLock        sync.Mutex
	drains           uint64
	lastDrain        time.Time
	minPoolEntropy   int64
	minDrainInterval time.Duration
}

// pool is an append-only buffer with a running entropy estimate in bits.
type pool struct {
	sync.Mutex
	buf     *container.Container
	entropy int64
}

// New returns a new accumulator with the default reseed policy.
func New() *Accumulator {
	return NewWithConfig(Config{})
}

// NewWithConfig returns a new accumulator with the given reseed policy.
func NewWithConfig(cfg Config) *Accumulator {
	if cfg.MinPoolEntropy == 0 {
		cfg.MinPoolEntropy = DefaultMinPoolEntropy
	}
	if cfg.MinDrainInterval == 0 {
		cfg.MinDrainInterval = DefaultMinDrainInterval
	}

	a := &Accumulator{
		minPoolEntropy:   cfg.MinPoolEntropy,
		minDrainInterval: cfg.MinDrainInterval,
	}
	for i := range a.pools {
		a.pools[i].buf = container.New()
	}
	return a
}

// Collect appends the given data to the next pool in round-robin order,
// crediting the default estimate of one bit of entropy per byte.
func (a *Accumulator) Collect(data []byte) {
	a.CollectWithEstimate(data, int64(len(data)))
}

// CollectWithEstimate appends the given data to the next pool in round-robin
// order, crediting the declared estimated entropy in bits. The data is
// copied, the caller may reuse its slice.
func (a *Accumulator) CollectWithEstimate(data []byte, estimatedBits int64) {
	if len(data) == 0 {
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	p := &a.pools[(atomic.AddUint32(&a.next, 1)-1)%NumPools]
	p.Lock()
	p.buf.Append(buf)
	p.entropy += estimatedBits
	p.Unlock()
}

// CollectInt packs the lowest bits of value most-significant byte first and
// collects the result. bits must be a positive multiple of 8 and at most 64.
func (a *Accumulator) CollectInt(value int64, bits int) error {
	buf, err := PackInt(value, bits)
	if err != nil {
		return err
	}
	a.Collect(buf)
	return nil
}

// PackInt packs the lowest bits of value into whole bytes, most significant
// byte first. bits must be a positive multiple of 8 and at most 64.
func PackInt(value int64, bits int) ([]byte, error) {
	if bits <= 0 || bits%8 != 0 || bits > 64 {
		return nil, fmt.Errorf("accumulator: bits must be a positive multiple of 8 up to 64, got %d", bits)
	}

	v := uint64(value)
	buf := make([]byte, bits/8)
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf, nil
}

// ReseedDue returns whether enough entropy has been collected and enough time
// has passed since the last drain to make a reseed worthwhile.
func (a *Accumulator) ReseedDue() bool {
	a.drainLock.Lock()
	defer a.drainLock.Unlock()

	if time.Since(a.lastDrain) < a.minDrainInterval {
		return false
	}

	p := &a.pools[0]
	p.Lock()
	defer p.Unlock()
	return p.entropy >= a.minPoolEntropy
}

// DrainForReseed compresses a selection of pools into seed material and
// clears them. Drain number n includes pool k if 2^k divides n, pool 0 is
// always included. The returned digest is deterministic for identical pool
// contents.
func (a *Accumulator) DrainForReseed() []byte {
	a.drainLock.Lock()
	defer a.drainLock.Unlock()

	a.drains++
	h := sha256.New()
	for k := 0; k < NumPools; k++ {
		if a.drains%(1<<uint(k)) != 0 {
			// higher pools cannot divide n either
			break
		}
		p := &a.pools[k]
		p.Lock()
		_, _ = h.Write(p.buf.CompileData())
		p.buf = container.New()
		p.entropy = 0
		p.Unlock()
	}
	a.lastDrain = time.Now()

	first := h.Sum(nil)
	second := sha256.Sum256(first)
	return second[:]
}

// Buffered returns the total number of bytes currently buffered in all pools.
func (a *Accumulator) Buffered() (n int) {
	for i := range a.pools {
		p := &a.pools[i]
		p.Lock()
		n += p.buf.Length()
		p.Unlock()
	}
	return
}

// PoolState returns the buffered byte count and the entropy estimate of the
// given pool.
func (a *Accumulator) PoolState(k int) (buffered int, estimatedBits int64) {
	p := &a.pools[k]
	p.Lock()
	defer p.Unlock()
	return p.buf.Length(), p.entropy
}

// Drains returns how often the accumulator has been drained.
func (a *Accumulator) Drains() uint64 {
	a.drainLock.Lock()
	defer a.drainLock.Unlock()

	return a.drains
}
