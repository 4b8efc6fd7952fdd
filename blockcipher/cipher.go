// Package blockcipher provides the pluggable block cipher primitive used by the
// fortuna generator. Implementations wrap an existing cipher and only add the
// strict key/seed formatting contract the generator relies on.
package blockcipher

import (
	"fmt"
)

// Cipher describes a block cipher as consumed by the generator: key expansion,
// counter formatting and counter increment. Implementations must be safe for
// concurrent use, as they hold no mutable state themselves.
type Cipher interface {
	// Name returns the configuration name of the cipher.
	Name() string

	// KeySize returns the required raw key length in bytes.
	KeySize() int

	// BlockSize returns the cipher's block size in bytes.
	BlockSize() int

	// FormatKey expands raw key material into a key schedule. The raw key
	// must be exactly KeySize() bytes, else a *ConfigurationError is returned.
	FormatKey(key []byte) (KeySchedule, error)

	// FormatSeed converts raw bytes into a counter block. The input must be
	// exactly BlockSize() bytes, else a *ConfigurationError is returned.
	FormatSeed(seed []byte) (BlockState, error)

	// Increment increments the given counter block in place and reports
	// whether the counter wrapped around.
	Increment(counter BlockState) (wrapped bool)
}

// KeySchedule is the cipher specific expansion of a raw key. It is owned
// exclusively by the generator and never exposes the raw key material again.
type KeySchedule interface {
	// Encrypt enciphers a single counter block and returns the ciphertext.
	// It is deterministic: identical key schedules and counters always
	// produce identical output.
	Encrypt(counter BlockState) []byte
}

// BlockState is a counter block with the same width as the cipher's block
// size. It is interpreted as a big-endian big integer by Increment.
type BlockState []byte

// ConfigurationError is returned when raw key or seed material does not match
// the length required by the cipher. Mismatched material is always rejected,
// never truncated or padded.
type ConfigurationError struct {
	Cipher string
	What   string
	Want   int
	Got    int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("blockcipher: %s requires a %d byte %s, got %d bytes", e.Cipher, e.Want, e.What, e.Got)
}

// incrementBlock increments a counter block as a big-endian big integer,
// wrapping silently on overflow.
func incrementBlock(counter BlockState) (wrapped bool) {
	for i := len(counter) - 1; i >= 0; i-- {
		counter[i]++
		if counter[i] != 0 {
			return false
		}
	}
	return true
}

// Get returns the cipher registered under the given configuration name.
func Get(name string) (Cipher, error) {
	switch name {
	case "aes":
		return AES128(), nil
	case "serpent":
		return Serpent128(), nil
	default:
		return nil, fmt.Errorf("blockcipher: unknown or unsupported cipher: %s", name)
	}
}
