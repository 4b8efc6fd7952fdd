package rng

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/safing/portbase/log"
)

// Message types exchanged over worker channels. The discriminator lets
// receivers filter entropy pushes from unrelated channel traffic.
const (
	// MsgTypeEntropy marks a frame carrying an entropy push payload.
	MsgTypeEntropy uint8 = 1
)

// Msg is a frame exchanged with another execution context over a worker
// channel. Frames are CBOR encoded on the wire.
type Msg struct {
	Type uint8  `cbor:"t"`
	Data []byte `cbor:"d,omitempty"`
}

// WorkerChannel is a bidirectional message link to an isolated execution
// context. Both directions carry encoded frames, see EncodeMsg and DecodeMsg.
// The Rng only holds the registration, the channel's lifecycle remains with
// the caller.
type WorkerChannel struct {
	In  <-chan []byte
	Out chan<- []byte
}

// EncodeMsg encodes a frame for transport over a worker channel.
func EncodeMsg(msg *Msg) ([]byte, error) {
	return cbor.Marshal(msg)
}

// DecodeMsg decodes a frame received from a worker channel.
func DecodeMsg(frame []byte) (*Msg, error) {
	msg := &Msg{}
	if err := cbor.Unmarshal(frame, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// RegisterWorker registers a worker channel for bidirectional entropy
// exchange: locally collected entropy is pushed to the channel, and entropy
// frames received from it are collected into the local accumulator.
// Registering the same channel again is a no-op.
func (r *Rng) RegisterWorker(w WorkerChannel) {
	r.workersLock.Lock()
	defer r.workersLock.Unlock()

	if _, ok := r.workers[w]; ok {
		return
	}

	stop := make(chan struct{})
	r.workers[w] = stop
	if w.In != nil {
		go r.readWorker(w, stop)
	}
}

// UnregisterWorker removes a previously registered worker channel and stops
// reading from it. Unknown channels are ignored.
func (r *Rng) UnregisterWorker(w WorkerChannel) {
	r.workersLock.Lock()
	defer r.workersLock.Unlock()

	if stop, ok := r.workers[w]; ok {
		close(stop)
		delete(r.workers, w)
	}
}

// unregisterAllWorkers removes all registered worker channels.
func (r *Rng) unregisterAllWorkers() {
	r.workersLock.Lock()
	defer r.workersLock.Unlock()

	for w, stop := range r.workers {
		close(stop)
		delete(r.workers, w)
	}
}

// readWorker collects entropy frames arriving from a worker channel. Received
// entropy is not forwarded again, so two linked contexts do not echo the same
// material back and forth.
func (r *Rng) readWorker(w WorkerChannel, stop <-chan struct{}) {
	for {
		select {
		case frame, ok := <-w.In:
			if !ok {
				return
			}
			msg, err := DecodeMsg(frame)
			if err != nil {
				log.Tracef("rng: dropping malformed worker frame: %s", err)
				continue
			}
			if msg.Type != MsgTypeEntropy {
				// unrelated channel traffic
				continue
			}
			r.collect(msg.Data, int64(len(msg.Data)), false)
		case <-stop:
			return
		}
	}
}

// forwardEntropy pushes collected entropy to all registered worker channels.
// Delivery is best effort: slow channels are skipped, never waited for.
func (r *Rng) forwardEntropy(data []byte) {
	r.workersLock.Lock()
	defer r.workersLock.Unlock()

	if len(r.workers) == 0 {
		return
	}

	frame, err := EncodeMsg(&Msg{Type: MsgTypeEntropy, Data: data})
	if err != nil {
		log.Warningf("rng: failed to encode entropy frame: %s", err)
		return
	}

	for w := range r.workers {
		if w.Out == nil {
			continue
		}
		select {
		case w.Out <- frame:
		default:
			// receiver is not keeping up, drop
		}
	}
}
