package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
)

// aesCipher implements Cipher using AES-128 from the standard library.
type aesCipher struct{}

// AES128 returns the AES-128 block cipher. This is the default cipher of the
// generator.
func AES128() Cipher {
	return aesCipher{}
}

func (aesCipher) Name() string {
	return "aes"
}

func (aesCipher) KeySize() int {
	return 16
}

func (aesCipher) BlockSize() int {
	return aes.BlockSize
}

func (c aesCipher) FormatKey(key []byte) (KeySchedule, error) {
	if len(key) != c.KeySize() {
		return nil, &ConfigurationError{
			Cipher: c.Name(),
			What:   "key",
			Want:   c.KeySize(),
			Got:    len(key),
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &blockSchedule{block: block}, nil
}

func (c aesCipher) FormatSeed(seed []byte) (BlockState, error) {
	return formatSeed(c, seed)
}

func (aesCipher) Increment(counter BlockState) (wrapped bool) {
	return incrementBlock(counter)
}

// blockSchedule adapts a stdlib cipher.Block to the KeySchedule interface.
// Shared by all ciphers that expose the cipher.Block interface.
type blockSchedule struct {
	block cipher.Block
}

func (s *blockSchedule) Encrypt(counter BlockState) []byte {
	out := make([]byte, s.block.BlockSize())
	s.block.Encrypt(out, counter)
	return out
}

// formatSeed copies raw bytes into a fresh counter block, enforcing the block
// width contract.
func formatSeed(c Cipher, seed []byte) (BlockState, error) {
	if len(seed) != c.BlockSize() {
		return nil, &ConfigurationError{
			Cipher: c.Name(),
			What:   "seed",
			Want:   c.BlockSize(),
			Got:    len(seed),
		}
	}

	counter := make(BlockState, len(seed))
	copy(counter, seed)
	return counter, nil
}
