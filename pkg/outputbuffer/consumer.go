package outputbuffer

import "go.uber.org/atomic"

// namedConsumer tracks the per-consumer read position and lifecycle for
// one registered output buffer id. ackSeq and finished are published via
// go.uber.org/atomic so they can be read with relaxed loads; every
// mutation still happens under the buffer's mutex (and Buffer.Info also
// takes it to walk the consumer map), so the atomics here are never used
// to synchronize writers (spec §5).
type namedConsumer[H any] struct {
	id   string
	hint H

	// ackSeq is the first sequence number this consumer has not yet
	// acknowledged. Advances monotonically; never moves backwards
	// (spec §4.3, checked in setAck).
	ackSeq atomic.Int64

	finished atomic.Bool
	aborted  bool
}

func newNamedConsumer[H any](id string, hint H) *namedConsumer[H] {
	return &namedConsumer[H]{id: id, hint: hint}
}

func (c *namedConsumer[H]) snapshot() ConsumerInfo {
	return ConsumerInfo{
		ID:       c.id,
		Finished: c.finished.Load(),
		AckSeq:   c.ackSeq.Load(),
	}
}

// setAck advances the consumer's acknowledged sequence number. Callers
// hold the buffer's lock; invariantBreach fires if the caller ever tries
// to move it backwards, which would indicate a corrupted master queue
// index (spec §7).
func (c *namedConsumer[H]) setAck(seq int64) {
	if seq < c.ackSeq.Load() {
		invariantBreach("ack_seq for consumer %q moved backwards: %d -> %d", c.id, c.ackSeq.Load(), seq)
	}
	c.ackSeq.Store(seq)
}

func (c *namedConsumer[H]) markFinished() {
	c.finished.Store(true)
}

func (c *namedConsumer[H]) isFinished() bool {
	return c.finished.Load()
}
