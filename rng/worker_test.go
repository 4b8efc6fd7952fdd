package rng

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/fortuna/blockcipher"
)

func TestWorkerForwarding(t *testing.T) {
	t.Parallel()

	r := New(blockcipher.AES128())
	out := make(chan []byte, 8)
	w := WorkerChannel{Out: out}
	r.RegisterWorker(w)
	defer r.UnregisterWorker(w)

	payload := []byte("forwarded entropy")
	r.Collect(payload)

	select {
	case frame := <-out:
		msg, err := DecodeMsg(frame)
		require.NoError(t, err, "forwarded frame must decode")
		assert.Equal(t, MsgTypeEntropy, msg.Type, "frame must carry the entropy type discriminator")
		assert.Equal(t, payload, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("no frame forwarded")
	}
}

func TestWorkerReceiving(t *testing.T) {
	t.Parallel()

	r := New(blockcipher.AES128())
	in := make(chan []byte, 8)
	w := WorkerChannel{In: in}
	r.RegisterWorker(w)
	defer r.UnregisterWorker(w)

	// unrelated channel traffic must be filtered out
	junk, err := EncodeMsg(&Msg{Type: 99, Data: []byte("not entropy")})
	require.NoError(t, err)
	in <- junk
	in <- []byte("not even a frame")

	frame, err := EncodeMsg(&Msg{Type: MsgTypeEntropy, Data: []byte("abc")})
	require.NoError(t, err)
	in <- frame

	deadline := time.Now().Add(time.Second)
	for r.acc.Buffered() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("entropy frame was not collected")
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 3, r.acc.Buffered(), "only the entropy payload must reach the pools")
}

func TestWorkerNoEcho(t *testing.T) {
	t.Parallel()

	r := New(blockcipher.AES128())
	in := make(chan []byte, 1)
	out := make(chan []byte, 1)
	w := WorkerChannel{In: in, Out: out}
	r.RegisterWorker(w)
	defer r.UnregisterWorker(w)

	frame, err := EncodeMsg(&Msg{Type: MsgTypeEntropy, Data: []byte("remote entropy")})
	require.NoError(t, err)
	in <- frame

	deadline := time.Now().Add(time.Second)
	for r.acc.Buffered() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("entropy frame was not collected")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-out:
		t.Error("received entropy was echoed back to the worker channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorkerRegistration(t *testing.T) {
	t.Parallel()

	r := New(blockcipher.AES128())
	out := make(chan []byte, 1)
	w := WorkerChannel{Out: out}

	r.RegisterWorker(w)
	r.RegisterWorker(w)
	r.workersLock.Lock()
	count := len(r.workers)
	r.workersLock.Unlock()
	assert.Equal(t, 1, count, "repeated registration must be idempotent")

	r.UnregisterWorker(w)
	r.UnregisterWorker(w)
	r.workersLock.Lock()
	count = len(r.workers)
	r.workersLock.Unlock()
	assert.Equal(t, 0, count)

	// slow receivers must never block collection
	full := make(chan []byte) // no reader
	r.RegisterWorker(WorkerChannel{Out: full})
	done := make(chan struct{})
	go func() {
		r.Collect([]byte("must not block"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("collect blocked on a slow worker channel")
	}
	r.unregisterAllWorkers()
}

func TestLinkedInstances(t *testing.T) {
	t.Parallel()

	// two contexts linked by a channel pair exchange entropy both ways
	aToB := make(chan []byte, 16)
	bToA := make(chan []byte, 16)

	a := New(blockcipher.AES128())
	b := New(blockcipher.AES128())
	wa := WorkerChannel{In: bToA, Out: aToB}
	wb := WorkerChannel{In: aToB, Out: bToA}
	a.RegisterWorker(wa)
	defer a.UnregisterWorker(wa)
	b.RegisterWorker(wb)
	defer b.UnregisterWorker(wb)

	a.Collect([]byte("from a"))
	b.Collect([]byte("from b!"))

	deadline := time.Now().Add(time.Second)
	for a.acc.Buffered() < len("from a")+len("from b!") ||
		b.acc.Buffered() < len("from a")+len("from b!") {
		if time.Now().After(deadline) {
			t.Fatalf("entropy exchange incomplete: a=%d b=%d", a.acc.Buffered(), b.acc.Buffered())
		}
		time.Sleep(time.Millisecond)
	}
}
