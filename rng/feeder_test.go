package rng

import (
	"context"
	"testing"
	"time"

	"github.com/safing/fortuna/blockcipher"
)

func TestFeederBatching(t *testing.T) {
	t.Parallel()

	r := New(blockcipher.AES128())
	f := r.NewFeederWithMinEntropy(16)
	defer f.CloseFeeder()

	f.SupplyEntropy([]byte{1, 2}, 8)
	if r.acc.Buffered() != 0 {
		t.Error("feeder fed before reaching the entropy threshold")
	}

	f.SupplyEntropy([]byte{3, 4}, 8)

	deadline := time.Now().Add(time.Second)
	for r.acc.Buffered() != 4 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 buffered bytes, got %d", r.acc.Buffered())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFeederNonBlockingSupply(t *testing.T) {
	t.Parallel()

	r := New(blockcipher.AES128())
	f := r.NewFeederWithMinEntropy(1 << 20)

	// go through all functions
	f.NeedsEntropy()
	f.SupplyEntropy([]byte{0}, 0)
	f.SupplyEntropyAsInt(0, 0)
	f.SupplyEntropyIfNeeded([]byte{0}, 0)
	f.SupplyEntropyAsIntIfNeeded(0, 0)

	f.CloseFeeder()

	// wait for the feeder goroutine to exit and clear the flag
	deadline := time.Now().Add(time.Second)
	for f.NeedsEntropy() {
		if time.Now().After(deadline) {
			t.Fatal("feeder still gathering after close")
		}
		time.Sleep(time.Millisecond)
	}

	// check non-blocking calls on a closed feeder
	waitC := make(chan struct{})
	go func() {
		f.SupplyEntropyIfNeeded([]byte{0}, 0)
		f.SupplyEntropyAsIntIfNeeded(0, 0)
		close(waitC)
	}()
	select {
	case <-waitC:
	case <-time.After(100 * time.Millisecond):
		t.Error("call blocks!")
	}
}

func TestFeederSupplyContext(t *testing.T) {
	t.Parallel()

	r := New(blockcipher.AES128())
	f := r.NewFeederWithMinEntropy(1 << 20)
	f.CloseFeeder()

	// with the feeder closed, only cancellation can release the supplier
	ctx, cancel := context.WithCancel(context.Background())
	waitC := make(chan error, 1)
	go func() {
		waitC <- f.supply(ctx, []byte{0}, 0)
	}()
	cancel()

	select {
	case err := <-waitC:
		if err == nil {
			t.Error("expected context error")
		}
	case <-time.After(time.Second):
		t.Error("supply did not honor cancellation")
	}
}
