// Package generator implements the fortuna generator: a block cipher in
// counter mode whose key is periodically refreshed from accumulated entropy.
//
// The generator itself does not manage entropy pools, see the accumulator
// package for that. The two are composed by the rng package.
package generator

import (
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/safing/portbase/log"

	"github.com/safing/fortuna/blockcipher"
)

// ErrNotSeeded is returned by strict generators when pseudo random data is
// requested before the first reseed.
var ErrNotSeeded = errors.New("generator: not seeded yet")

// reseeds mix the counter seed with a tag to separate it from key derivation
var counterSeedTag = []byte("fortuna-v1 counter")

// maxBytesPerKey limits how much output is produced from a single key before
// the generator rekeys itself from its own output stream.
const maxBytesPerKey = 1 << 20

// Generator holds the cipher key and counter state and produces pseudo random
// blocks. All methods are safe for concurrent use.
type Generator struct {
	lock sync.Mutex

	cipher   blockcipher.Cipher
	key      []byte
	schedule blockcipher.KeySchedule
	counter  blockcipher.BlockState

	reseedCount  uint64
	lastReseed   time.Time
	counterWraps uint64
	strict       bool
}

// New returns a new, unseeded generator using the given cipher. The first
// call to PseudoRandomData will implicitly seed it with empty entropy, so
// callers that care about seed quality must Reseed first.
func New(cipher blockcipher.Cipher) *Generator {
	return &Generator{cipher: cipher}
}

// NewStrict returns a new, unseeded generator that rejects output requests
// with ErrNotSeeded until it is reseeded for the first time.
func NewStrict(cipher blockcipher.Cipher) *Generator {
	return &Generator{cipher: cipher, strict: true}
}

// Reseed derives a new key schedule and a fresh counter from the existing key
// material and the given entropy. It is deterministic: the new state depends
// only on the previous key and the supplied entropy.
func (g *Generator) Reseed(entropy []byte) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.reseed(entropy)
}

func (g *Generator) reseed(entropy []byte) error {
	keyMaterial := sha256d(g.key, entropy)
	if g.cipher.KeySize() > len(keyMaterial) {
		return &blockcipher.ConfigurationError{
			Cipher: g.cipher.Name(),
			What:   "key",
			Want:   g.cipher.KeySize(),
			Got:    len(keyMaterial),
		}
	}

	key := keyMaterial[:g.cipher.KeySize()]
	schedule, err := g.cipher.FormatKey(key)
	if err != nil {
		return err
	}

	counterMaterial := sha256d(keyMaterial, counterSeedTag)
	counter, err := g.cipher.FormatSeed(counterMaterial[:g.cipher.BlockSize()])
	if err != nil {
		return err
	}

	g.key = key
	g.schedule = schedule
	g.counter = counter
	g.reseedCount++
	g.lastReseed = time.Now()
	return nil
}

// PseudoRandomData returns n pseudo random bytes. Unused bytes of the final
// cipher block are discarded and never returned by a later call. After every
// request the generator replaces its key with fresh output, so a compromise
// of the current state does not reveal previously generated data.
func (g *Generator) PseudoRandomData(n uint) ([]byte, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if n == 0 {
		return []byte{}, nil
	}

	if g.schedule == nil {
		if g.strict {
			return nil, ErrNotSeeded
		}
		if err := g.reseed(nil); err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, n)
	remaining := int(n)
	for remaining > 0 {
		chunk := remaining
		if chunk > maxBytesPerKey {
			chunk = maxBytesPerKey
		}
		out = append(out, g.generate(chunk)...)
		if err := g.rekey(); err != nil {
			return nil, err
		}
		remaining -= chunk
	}
	return out, nil
}

// generate produces exactly count bytes from the current key and counter.
func (g *Generator) generate(count int) []byte {
	buf := make([]byte, 0, count+g.cipher.BlockSize())
	for len(buf) < count {
		buf = append(buf, g.generateBlock()...)
	}
	return buf[:count]
}

// generateBlock enciphers the current counter and increments it, so the same
// key and counter pair is never consumed twice.
func (g *Generator) generateBlock() []byte {
	block := g.schedule.Encrypt(g.counter)
	if g.cipher.Increment(g.counter) {
		g.counterWraps++
		log.Warningf("generator: %s counter wrapped around", g.cipher.Name())
	}
	return block
}

// rekey replaces the key with fresh generator output.
func (g *Generator) rekey() error {
	key := g.generate(g.cipher.KeySize())
	schedule, err := g.cipher.FormatKey(key)
	if err != nil {
		return err
	}
	g.key = key
	g.schedule = schedule
	return nil
}

// Seeded returns whether the generator has been reseeded at least once.
func (g *Generator) Seeded() bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.schedule != nil
}

// ReseedCount returns how often the generator has been reseeded.
func (g *Generator) ReseedCount() uint64 {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.reseedCount
}

// LastReseed returns the time of the last reseed, or the zero time if the
// generator is unseeded.
func (g *Generator) LastReseed() time.Time {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.lastReseed
}

// CounterWraps returns how often the counter has wrapped around. A non-zero
// value is advisory only, output generation continues with the wrapped
// counter, as every rekey makes the key and counter pair unique again.
func (g *Generator) CounterWraps() uint64 {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.counterWraps
}

// sha256d computes the double SHA-256 digest over the concatenation of the
// given parts.
func sha256d(parts ...[]byte) []byte {
	h := sha256.New()
	for _, part := range parts {
		_, _ = h.Write(part)
	}
	first := h.Sum(nil)
	second := sha256.Sum256(first)
	return second[:]
}
