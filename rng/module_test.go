package rng

import (
	"testing"

	"github.com/safing/portbase/config"

	"github.com/safing/fortuna/blockcipher"
)

func init() {
	err := prep()
	if err != nil {
		panic(err)
	}

	err = start()
	if err != nil {
		panic(err)
	}
}

func TestModuleAPI(t *testing.T) {
	key := make([]byte, 16)

	err := config.SetConfigOption("rng/cipher", "aes")
	if err != nil {
		t.Errorf("failed to set rng/cipher config: %s", err)
	}
	c, err := blockcipher.Get(rngCipherOption())
	if err != nil {
		t.Errorf("failed to get aes cipher: %s", err)
	}
	if _, err := c.FormatKey(key); err != nil {
		t.Errorf("failed to expand aes key: %s", err)
	}

	err = config.SetConfigOption("rng/cipher", "serpent")
	if err != nil {
		t.Errorf("failed to set rng/cipher config: %s", err)
	}
	c, err = blockcipher.Get(rngCipherOption())
	if err != nil {
		t.Errorf("failed to get serpent cipher: %s", err)
	}
	if _, err := c.FormatKey(key); err != nil {
		t.Errorf("failed to expand serpent key: %s", err)
	}

	if err := Collect([]byte{0, 1, 2, 3}); err != nil {
		t.Errorf("Collect failed: %s", err)
	}
	if err := CollectInt(0x1234, 16); err != nil {
		t.Errorf("CollectInt failed: %s", err)
	}

	b := make([]byte, 32)
	if _, err := Read(b); err != nil {
		t.Errorf("Read failed: %s", err)
	}
	if _, err := Reader.Read(b); err != nil {
		t.Errorf("Reader.Read failed: %s", err)
	}
	if _, err := Bytes(32); err != nil {
		t.Errorf("Bytes failed: %s", err)
	}
	if _, err := GetBytes(32); err != nil {
		t.Errorf("GetBytes failed: %s", err)
	}
	if _, err := Number(100); err != nil {
		t.Errorf("Number failed: %s", err)
	}

	out := make(chan []byte, 1)
	if err := RegisterWorker(WorkerChannel{Out: out}); err != nil {
		t.Errorf("RegisterWorker failed: %s", err)
	}
	Default().unregisterAllWorkers()
}
