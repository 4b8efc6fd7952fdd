package rng

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/safing/portbase/config"
	"github.com/safing/portbase/modules"

	"github.com/safing/fortuna/accumulator"
	"github.com/safing/fortuna/blockcipher"
)

// ErrNotReady is returned by the process-wide convenience functions before
// the rng module has been started.
var ErrNotReady = errors.New("rng: module not started yet")

var (
	module *modules.Module

	defaultRng  *Rng
	defaultLock sync.Mutex

	rngCipherOption         config.StringOption
	minFeedEntropyOption    config.IntOption
	minPoolEntropyOption    config.IntOption
	reseedMinIntervalOption config.IntOption
	reseedAfterBytesOption  config.IntOption
)

func init() {
	module = modules.Register("rng", prep, start, stop)
}

func prep() error {
	var errs *multierror.Error

	errs = multierror.Append(errs, config.Register(&config.Option{
		Name:            "RNG Cipher",
		Key:             "rng/cipher",
		Description:     "Cipher to use for the Fortuna RNG. Requires restart to take effect.",
		OptType:         config.OptTypeString,
		ExpertiseLevel:  config.ExpertiseLevelDeveloper,
		ReleaseLevel:    config.ReleaseLevelExperimental,
		RequiresRestart: true,
		DefaultValue:    "aes",
		ValidationRegex: "^(aes|serpent)$",
	}))

	errs = multierror.Append(errs, config.Register(&config.Option{
		Name:            "Minimum Feed Entropy",
		Key:             "rng/min_feed_entropy",
		Description:     "The minimum amount of entropy before an entropy source batch is fed to the RNG, in bits.",
		OptType:         config.OptTypeInt,
		ExpertiseLevel:  config.ExpertiseLevelDeveloper,
		ReleaseLevel:    config.ReleaseLevelExperimental,
		DefaultValue:    DefaultMinFeedEntropy,
		ValidationRegex: "^[0-9]{3,5}$",
	}))

	errs = multierror.Append(errs, config.Register(&config.Option{
		Name:            "Minimum Pool Entropy",
		Key:             "rng/min_pool_entropy",
		Description:     "The minimum amount of estimated entropy in the first pool before a reseed is triggered, in bits.",
		OptType:         config.OptTypeInt,
		ExpertiseLevel:  config.ExpertiseLevelDeveloper,
		ReleaseLevel:    config.ReleaseLevelExperimental,
		DefaultValue:    accumulator.DefaultMinPoolEntropy,
		ValidationRegex: "^[0-9]{2,5}$",
	}))

	errs = multierror.Append(errs, config.Register(&config.Option{
		Name:            "Minimum Reseed Interval",
		Key:             "rng/reseed_min_interval",
		Description:     "Minimum number of milliseconds between reseeds. Rate-limits reseeding against spurious reseed requests.",
		OptType:         config.OptTypeInt,
		ExpertiseLevel:  config.ExpertiseLevelDeveloper,
		ReleaseLevel:    config.ReleaseLevelExperimental,
		DefaultValue:    100,
		ValidationRegex: "^[1-9][0-9]{0,5}$",
	}))

	errs = multierror.Append(errs, config.Register(&config.Option{
		Name:            "Reseed after x bytes",
		Key:             "rng/reseed_after_bytes",
		Description:     "Number of fetched bytes until a reseed is forced.",
		OptType:         config.OptTypeInt,
		ExpertiseLevel:  config.ExpertiseLevelDeveloper,
		ReleaseLevel:    config.ReleaseLevelExperimental,
		DefaultValue:    DefaultReseedAfterBytes,
		ValidationRegex: "^[1-9][0-9]{2,9}$",
	}))

	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	rngCipherOption = config.GetAsString("rng/cipher", "aes")
	minFeedEntropyOption = config.Concurrent.GetAsInt("rng/min_feed_entropy", DefaultMinFeedEntropy)
	minPoolEntropyOption = config.Concurrent.GetAsInt("rng/min_pool_entropy", accumulator.DefaultMinPoolEntropy)
	reseedMinIntervalOption = config.Concurrent.GetAsInt("rng/reseed_min_interval", 100)
	reseedAfterBytesOption = config.GetAsInt("rng/reseed_after_bytes", DefaultReseedAfterBytes)

	return nil
}

func start() error {
	cipher, err := blockcipher.Get(rngCipherOption())
	if err != nil {
		return err
	}

	defaultLock.Lock()
	defaultRng = NewWithOptions(Options{
		Cipher:            cipher,
		MinPoolEntropy:    minPoolEntropyOption(),
		MinReseedInterval: time.Duration(reseedMinIntervalOption()) * time.Millisecond,
		ReseedAfterBytes:  reseedAfterBytesOption(),
	})
	defaultLock.Unlock()

	for _, src := range []Source{OSSource(), TickSource(), StatSource()} {
		src := src
		module.StartServiceWorker("entropy source: "+src.Name(), 0, func(ctx context.Context) error {
			return Default().RunSourceWithMinEntropy(ctx, src, minFeedEntropyOption())
		})
	}

	return nil
}

func stop() error {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	if defaultRng != nil {
		defaultRng.unregisterAllWorkers()
	}
	return nil
}

// Default returns the process-wide Rng instance, or nil if the rng module has
// not been started yet.
func Default() *Rng {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	return defaultRng
}

// Reader provides a process-wide instance to read from the RNG.
var Reader io.Reader = reader{}

// reader provides an io.Reader interface to the default Rng.
type reader struct{}

func (r reader) Read(b []byte) (n int, err error) {
	return Read(b)
}

// Read reads pseudo random bytes from the default Rng into the supplied byte
// slice.
func Read(b []byte) (n int, err error) {
	r := Default()
	if r == nil {
		return 0, ErrNotReady
	}
	return r.Read(b)
}

// GetBytes returns n pseudo random bytes from the default Rng.
func GetBytes(n int) ([]byte, error) {
	r := Default()
	if r == nil {
		return nil, ErrNotReady
	}
	return r.GetBytes(n)
}

// Bytes is an alias for GetBytes.
func Bytes(n int) ([]byte, error) {
	return GetBytes(n)
}

// Number returns an unbiased pseudo random number from 0 to (incl.) max from
// the default Rng.
func Number(max uint64) (uint64, error) {
	r := Default()
	if r == nil {
		return 0, ErrNotReady
	}
	return r.Number(max)
}

// Collect feeds entropy to the default Rng.
func Collect(data []byte) error {
	r := Default()
	if r == nil {
		return ErrNotReady
	}
	r.Collect(data)
	return nil
}

// CollectInt feeds an integer's entropy to the default Rng.
func CollectInt(value int64, bits int) error {
	r := Default()
	if r == nil {
		return ErrNotReady
	}
	return r.CollectInt(value, bits)
}

// RegisterWorker registers a worker channel with the default Rng.
func RegisterWorker(w WorkerChannel) error {
	r := Default()
	if r == nil {
		return ErrNotReady
	}
	r.RegisterWorker(w)
	return nil
}
