package outputbuffer

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/atomic"
)

// pendingRead is a parked Get call awaiting data or a terminal state
// (spec §4.5). It is kept keyed by consumer id rather than a *namedConsumer
// pointer so a read issued before registration can still be parked and
// resolved once set_output_buffers arrives.
type pendingRead[H any] struct {
	consumerID string
	startSeq   int64
	maxBytes   int64
	signal     *Signal[GetResult[H]]
}

// Buffer is the shuffle output buffer for a single task: one local
// producer, any number of named consumers, a bounded byte budget and a
// five-state lifecycle. All mutation happens under mu; nothing here
// performs blocking I/O, and state-change listeners run on executor,
// never while mu is held.
type Buffer[H any] struct {
	mu sync.Mutex

	taskID           string
	executor         Executor
	maxBufferedBytes int64

	sm *stateMachine

	masterQueue   []Page
	baseSeq       int64
	bufferedBytes int64
	pagesAdded    atomic.Int64

	// overflow holds producer completion signals still waiting for
	// buffered_bytes to drop back within budget (spec §4.4). The pages
	// themselves are already resident in masterQueue by the time a
	// signal lands here.
	overflow []*Signal[struct{}]

	consumers  map[string]*namedConsumer[H]
	abortedSet map[string]bool

	buffersVersion      int64
	noMoreBuffersSticky bool

	pendingReads []*pendingRead[H]
}

// New creates a buffer in state OPEN with the given byte budget. executor
// dispatches state-change listener callbacks; GoExecutor is used if nil.
func New[H any](taskID string, executor Executor, maxBufferedBytes int64) (*Buffer[H], error) {
	if taskID == "" {
		return nil, &ParameterError{Param: "task_id", Reason: "must not be empty"}
	}
	if maxBufferedBytes <= 0 {
		return nil, &ParameterError{Param: "max_buffered_bytes", Reason: "must be positive"}
	}
	if executor == nil {
		executor = GoExecutor{}
	}
	return &Buffer[H]{
		taskID:           taskID,
		executor:         executor,
		maxBufferedBytes: maxBufferedBytes,
		sm:               newStateMachine(),
		consumers:        make(map[string]*namedConsumer[H]),
		abortedSet:       make(map[string]bool),
		buffersVersion:   -1,
	}, nil
}

// Enqueue admits page into the master queue immediately, whenever the
// state accepts pages at all (spec §4.2) — a consumer's view of the
// stream never waits on the producer's backpressure signal. What
// "overflow" gates is only the *signal* handed back to the producer:
// it completes right away if the admission kept buffered_bytes within
// budget, otherwise it is parked on the overflow FIFO and resolved once
// advancement drains enough of the master queue. Enqueue discards the
// page (returning an already-completed signal) if the state no longer
// accepts pages at all.
func (b *Buffer[H]) Enqueue(page Page) (*Signal[struct{}], error) {
	if page == nil {
		return nil, &ParameterError{Param: "page", Reason: "must not be nil"}
	}

	b.mu.Lock()

	if !b.sm.canAddPages() {
		b.mu.Unlock()
		return Completed[struct{}](struct{}{}), nil
	}

	b.admitLocked(page)
	metricPagesAdded.Inc()

	var sig *Signal[struct{}]
	if b.bufferedBytes <= b.maxBufferedBytes {
		sig = Completed[struct{}](struct{}{})
	} else {
		sig = NewSignal[struct{}]()
		b.overflow = append(b.overflow, sig)
		metricPagesOverflowed.Inc()
	}

	transitions := b.afterMutationLocked()
	b.mu.Unlock()
	b.dispatchTransitions(transitions)
	return sig, nil
}

// Get requests a contiguous slice of the master stream for consumer id,
// starting at start_seq. The returned signal may already be completed, or
// may resolve later once data or closure becomes available (spec §4.3).
func (b *Buffer[H]) Get(id string, startSeq int64, maxBytes int64) (*Signal[GetResult[H]], error) {
	if id == "" {
		return nil, &ParameterError{Param: "id", Reason: "must not be empty"}
	}
	if startSeq < 0 {
		return nil, &ParameterError{Param: "start_seq", Reason: "must be non-negative"}
	}
	if maxBytes <= 0 {
		return nil, &ParameterError{Param: "max_bytes", Reason: "must be positive"}
	}

	b.mu.Lock()

	pr := &pendingRead[H]{consumerID: id, startSeq: startSeq, maxBytes: maxBytes, signal: NewSignal[GetResult[H]]()}
	b.pendingReads = append(b.pendingReads, pr)

	transitions := b.afterMutationLocked()
	b.mu.Unlock()
	b.dispatchTransitions(transitions)
	return pr.signal, nil
}

// Abort marks consumer id finished, whether or not it has registered yet
// (spec §4.3). Idempotent: aborting twice, or aborting an already-finished
// consumer, has no further effect.
func (b *Buffer[H]) Abort(id string) {
	b.mu.Lock()

	b.abortedSet[id] = true
	registered := "false"
	if c, ok := b.consumers[id]; ok {
		registered = "true"
		c.aborted = true
		c.markFinished()
	}
	metricAborts.WithLabelValues(registered).Inc()

	transitions := b.afterMutationLocked()
	b.mu.Unlock()
	b.dispatchTransitions(transitions)
}

// SetNoMorePages signals that the producer will enqueue no further pages
// (spec §4.1 transition table).
func (b *Buffer[H]) SetNoMorePages() {
	b.mu.Lock()
	b.sm.onSetNoMorePages()
	transitions := b.afterMutationLocked()
	b.mu.Unlock()
	b.dispatchTransitions(transitions)
}

// SetOutputBuffers applies a versioned consumer-set descriptor (spec §3,
// §4.1, §4.3). Descriptors at or below the currently-applied version are
// silently ignored, and so is every descriptor, whatever its version, once
// registrations are closed (NO_MORE_BUFFERS, FLUSHING, FINISHED). A descriptor
// that would drop a previously-registered consumer id is rejected with an
// InvariantError and leaves the buffer state unmutated.
func (b *Buffer[H]) SetOutputBuffers(desc OutputBuffers[H]) error {
	b.mu.Lock()

	if desc.Version <= b.buffersVersion {
		b.mu.Unlock()
		return nil
	}
	if !b.sm.canAddBuffers() {
		b.mu.Unlock()
		return nil
	}
	for existing := range b.consumers {
		if _, ok := desc.Buffers[existing]; !ok {
			b.mu.Unlock()
			return &InvariantError{Reason: fmt.Sprintf("set_output_buffers version %d drops previously registered consumer %q", desc.Version, existing)}
		}
	}

	for id, hint := range desc.Buffers {
		if _, ok := b.consumers[id]; ok {
			continue
		}
		c := newNamedConsumer(id, hint)
		if b.abortedSet[id] {
			c.aborted = true
			c.markFinished()
		}
		b.consumers[id] = c
	}
	b.buffersVersion = desc.Version
	b.noMoreBuffersSticky = b.noMoreBuffersSticky || desc.NoMoreBuffers
	if b.noMoreBuffersSticky {
		b.sm.onSetNoMoreBuffers()
	}

	transitions := b.afterMutationLocked()
	b.mu.Unlock()
	b.dispatchTransitions(transitions)
	return nil
}

// Destroy forces the buffer to FINISHED, discards all buffered data, and
// resolves every outstanding signal (spec §4.6). Idempotent.
func (b *Buffer[H]) Destroy() {
	b.mu.Lock()
	b.destroyLocked()
	transitions := b.sm.drain()
	b.mu.Unlock()
	b.dispatchTransitions(transitions)
}

// AddStateChangeListener registers fn to be invoked, on the buffer's
// executor, on every future state transition (spec §4.1).
func (b *Buffer[H]) AddStateChangeListener(fn func(State)) {
	b.mu.Lock()
	b.sm.addListener(fn)
	b.mu.Unlock()
}

// Info returns a snapshot for status and debug surfaces. ack_seq and
// finished are published via relaxed atomic reads (spec §5); Info still
// takes the buffer's single lock briefly to walk the consumer map safely,
// rather than requiring a second synchronization mechanism.
func (b *Buffer[H]) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()

	consumers := make([]ConsumerInfo, 0, len(b.consumers))
	for _, c := range b.consumers {
		ci := c.snapshot()
		ci.InFlight = b.hasPendingReadLocked(c.id)
		consumers = append(consumers, ci)
	}
	return Info{
		State:      b.sm.state(),
		BaseSeq:    b.baseSeq,
		PagesAdded: b.pagesAdded.Load(),
		Consumers:  consumers,
	}
}

func (b *Buffer[H]) hasPendingReadLocked(id string) bool {
	for _, pr := range b.pendingReads {
		if pr.consumerID == id {
			return true
		}
	}
	return false
}

func (b *Buffer[H]) admitLocked(page Page) {
	b.masterQueue = append(b.masterQueue, page)
	b.bufferedBytes += page.SizeBytes()
	b.pagesAdded.Add(1)
}

// refillFromOverflowLocked resolves parked producer signals, in FIFO
// order, for as long as buffered_bytes has room again (spec §4.4). The
// pages they correspond to are already in masterQueue; nothing here
// moves data, it only unblocks the producer.
func (b *Buffer[H]) refillFromOverflowLocked() {
	for len(b.overflow) > 0 && b.bufferedBytes <= b.maxBufferedBytes {
		sig := b.overflow[0]
		b.overflow = b.overflow[1:]
		sig.Complete(struct{}{})
	}
}

// advanceLocked drops acknowledged pages from the head of the master
// queue once the consumer set is frozen (spec §4.2). Before that point
// the buffer must preserve every page from sequence 0, since an
// as-yet-unregistered consumer is assumed to want the whole stream.
func (b *Buffer[H]) advanceLocked() {
	if b.sm.canAddBuffers() {
		return
	}

	newBase := int64(math.MaxInt64)
	anyActive := false
	for _, c := range b.consumers {
		if c.isFinished() {
			continue
		}
		anyActive = true
		if a := c.ackSeq.Load(); a < newBase {
			newBase = a
		}
	}
	if !anyActive {
		newBase = b.pagesAdded.Load()
	}
	b.dropToLocked(newBase)
}

func (b *Buffer[H]) dropToLocked(newBase int64) {
	if newBase < b.baseSeq {
		invariantBreach("base_seq would move backwards: %d -> %d", b.baseSeq, newBase)
	}
	for newBase > b.baseSeq && len(b.masterQueue) > 0 {
		head := b.masterQueue[0]
		b.masterQueue = b.masterQueue[1:]
		b.bufferedBytes -= head.SizeBytes()
		b.baseSeq++
	}
	metricBufferedBytes.WithLabelValues("master").Set(float64(b.bufferedBytes))
	b.refillFromOverflowLocked()
}

// refreshConsumerFinishedLocked applies the completion rule from spec
// §4.3: aborted, or destroyed, or no more pages can ever arrive and the
// consumer has acknowledged everything admitted so far.
func (b *Buffer[H]) refreshConsumerFinishedLocked(c *namedConsumer[H]) {
	if c.isFinished() {
		return
	}
	if c.aborted || b.sm.state() == StateFinished {
		c.markFinished()
		return
	}
	if !b.sm.canAddPages() && c.ackSeq.Load() >= b.pagesAdded.Load() {
		c.markFinished()
	}
}

func (b *Buffer[H]) allConsumersFinishedLocked() bool {
	for _, c := range b.consumers {
		if !c.isFinished() {
			return false
		}
	}
	return true
}

// reevaluatePendingLocked re-tries every parked read, removing the ones
// that resolve (spec §4.5).
func (b *Buffer[H]) reevaluatePendingLocked() {
	remaining := b.pendingReads[:0]
	for _, pr := range b.pendingReads {
		if !b.tryResolveGetLocked(pr) {
			remaining = append(remaining, pr)
		}
	}
	b.pendingReads = remaining
	metricPendingReads.Set(float64(len(b.pendingReads)))
}

// tryResolveGetLocked implements the get() contract of spec §4.3 for one
// pending read. It returns true iff the read's signal was completed (and
// so the read should be dropped from the registry).
func (b *Buffer[H]) tryResolveGetLocked(pr *pendingRead[H]) bool {
	c, ok := b.consumers[pr.consumerID]
	if !ok {
		if b.sm.state() == StateFinished {
			pr.signal.Complete(GetResult[H]{StartSeq: 0, EndSeq: 0, Closed: true})
			return true
		}
		return false
	}

	cur := c.ackSeq.Load()
	if pr.startSeq < cur {
		pr.signal.Complete(GetResult[H]{StartSeq: pr.startSeq, EndSeq: pr.startSeq, Closed: false, PartitionHint: c.hint})
		return true
	}
	if pr.startSeq > cur {
		c.setAck(pr.startSeq)
		cur = pr.startSeq
	}

	b.refreshConsumerFinishedLocked(c)
	if c.isFinished() {
		pr.signal.Complete(GetResult[H]{StartSeq: cur, EndSeq: cur, Closed: true, PartitionHint: c.hint})
		return true
	}

	if cur < b.baseSeq {
		invariantBreach("consumer %q ack_seq %d fell behind base_seq %d", pr.consumerID, cur, b.baseSeq)
	}
	idx := cur - b.baseSeq
	if idx >= int64(len(b.masterQueue)) {
		return false
	}

	var pages []Page
	var size int64
	for i := idx; i < int64(len(b.masterQueue)); i++ {
		p := b.masterQueue[i]
		if len(pages) > 0 && size+p.SizeBytes() > pr.maxBytes {
			break
		}
		pages = append(pages, p)
		size += p.SizeBytes()
	}

	endSeq := cur + int64(len(pages))
	c.setAck(endSeq)
	pr.signal.Complete(GetResult[H]{StartSeq: cur, EndSeq: endSeq, Closed: false, Pages: pages, PartitionHint: c.hint})
	return true
}

// destroyLocked implements spec §4.6. Safe to call more than once: every
// step is already idempotent (clearing an empty queue, completing an
// already-completed signal, marking an already-finished consumer).
func (b *Buffer[H]) destroyLocked() {
	b.sm.finish()
	b.masterQueue = nil
	b.bufferedBytes = 0
	metricBufferedBytes.WithLabelValues("master").Set(0)

	for _, sig := range b.overflow {
		sig.Complete(struct{}{})
	}
	b.overflow = nil
	metricBufferedBytes.WithLabelValues("overflow").Set(0)

	for _, c := range b.consumers {
		c.markFinished()
	}
	b.reevaluatePendingLocked()
}

// flushCompletionCheckLocked implements spec §4.7. Called once at the
// tail of every public operation's critical section; never re-entered
// from within reevaluatePendingLocked or advanceLocked.
func (b *Buffer[H]) flushCompletionCheckLocked() {
	if b.sm.state() == StateFlushing && b.allConsumersFinishedLocked() {
		b.destroyLocked()
	}
}

// afterMutationLocked runs the fixed-point sweep every public mutator
// ends with: serve whatever reads are already satisfiable, advance and
// refill based on the acks that served reads just produced, re-evaluate
// the parked reads once more against the advanced queue, then check for
// natural completion exactly once. It returns the state
// transitions recorded during the call, for the caller to dispatch after
// releasing the lock.
func (b *Buffer[H]) afterMutationLocked() []transition {
	b.reevaluatePendingLocked()
	b.advanceLocked()
	b.reevaluatePendingLocked()
	b.flushCompletionCheckLocked()
	return b.sm.drain()
}

func (b *Buffer[H]) dispatchTransitions(transitions []transition) {
	for _, t := range transitions {
		metricStateTransitions.WithLabelValues(t.state.String()).Inc()
		for _, l := range t.listeners {
			l, st := l, t.state
			b.executor.Execute(func() { l(st) })
		}
	}
}
