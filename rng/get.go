package rng

import (
	"encoding/binary"
	"math"
)

// Read reads pseudo random bytes into the supplied byte slice. It implements
// the io.Reader interface.
func (r *Rng) Read(b []byte) (n int, err error) {
	data, err := r.GetBytes(len(b))
	if err != nil {
		return 0, err
	}
	return copy(b, data), nil
}

// Bytes allocates a new byte slice of given length and fills it with
// pseudo random data. It is an alias for GetBytes.
func (r *Rng) Bytes(n int) ([]byte, error) {
	return r.GetBytes(n)
}

// Number returns an unbiased pseudo random number from 0 to (incl.) max.
func (r *Rng) Number(max uint64) (uint64, error) {
	if max == 0 {
		return 0, nil
	}
	if max == math.MaxUint64 {
		b, err := r.GetBytes(8)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b), nil
	}

	count := max + 1
	secureLimit := math.MaxUint64 - (math.MaxUint64 % count)

	for {
		b, err := r.GetBytes(8)
		if err != nil {
			return 0, err
		}

		candidate := binary.LittleEndian.Uint64(b)
		if candidate < secureLimit {
			return candidate % count, nil
		}
	}
}
