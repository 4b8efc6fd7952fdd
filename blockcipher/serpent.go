package blockcipher

import (
	"github.com/aead/serpent"
)

// serpentCipher implements Cipher using the Serpent block cipher with a
// 128 bit key.
type serpentCipher struct{}

// Serpent128 returns the Serpent block cipher as an alternative to AES.
func Serpent128() Cipher {
	return serpentCipher{}
}

func (serpentCipher) Name() string {
	return "serpent"
}

func (serpentCipher) KeySize() int {
	return 16
}

func (serpentCipher) BlockSize() int {
	return serpent.BlockSize
}

func (c serpentCipher) FormatKey(key []byte) (KeySchedule, error) {
	if len(key) != c.KeySize() {
		return nil, &ConfigurationError{
			Cipher: c.Name(),
			What:   "key",
			Want:   c.KeySize(),
			Got:    len(key),
		}
	}

	block, err := serpent.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &blockSchedule{block: block}, nil
}

func (c serpentCipher) FormatSeed(seed []byte) (BlockState, error) {
	return formatSeed(c, seed)
}

func (serpentCipher) Increment(counter BlockState) (wrapped bool) {
	return incrementBlock(counter)
}
