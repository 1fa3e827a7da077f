package outputbuffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNewBuffer(t *testing.T, maxBytes int64) *Buffer[string] {
	t.Helper()
	b, err := New[string]("task-1", GoExecutor{}, maxBytes)
	require.NoError(t, err)
	return b
}

func waitGet[H any](t *testing.T, b *Buffer[H], id string, start, max int64) GetResult[H] {
	t.Helper()
	sig, err := b.Get(id, start, max)
	require.NoError(t, err)
	res, err := sig.Wait(context.Background())
	require.NoError(t, err)
	return res
}

func TestNew_RejectsBadParameters(t *testing.T) {
	_, err := New[string]("", GoExecutor{}, 100)
	assert.Error(t, err)

	_, err = New[string]("t", GoExecutor{}, 0)
	assert.Error(t, err)
}

func TestEnqueue_RejectsNilPage(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	_, err := b.Enqueue(nil)
	assert.Error(t, err)
}

func TestEnqueue_DirectAdmissionCompletesImmediately(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	sig, err := b.Enqueue(testPage{size: 100})
	require.NoError(t, err)
	assert.True(t, sig.IsDone())
	assert.Equal(t, int64(1), b.Info().PagesAdded)
}

func TestEnqueue_DiscardedWhenPagesNoLongerAccepted(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	b.SetNoMorePages()

	sig, err := b.Enqueue(testPage{size: 100})
	require.NoError(t, err)
	assert.True(t, sig.IsDone())
	assert.Equal(t, int64(0), b.Info().PagesAdded, "discarded page must not count toward pages_added")
}

func TestEnqueue_OverflowsWhenBudgetExhausted(t *testing.T) {
	b := mustNewBuffer(t, 500)

	sig1, err := b.Enqueue(testPage{size: 300})
	require.NoError(t, err)
	assert.True(t, sig1.IsDone())

	sig2, err := b.Enqueue(testPage{size: 300})
	require.NoError(t, err)
	assert.False(t, sig2.IsDone(), "second page exceeds the budget and must overflow")
}

func TestGet_RejectsBadParameters(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	_, err := b.Get("", 0, 10)
	assert.Error(t, err)
	_, err = b.Get("a", -1, 10)
	assert.Error(t, err)
	_, err = b.Get("a", 0, 0)
	assert.Error(t, err)
}

func TestGet_AlwaysIncludesFirstPageEvenIfOversized(t *testing.T) {
	b := mustNewBuffer(t, 10_000)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": "hintA"}, NoMoreBuffers: true}))

	_, err := b.Enqueue(testPage{size: 9000})
	require.NoError(t, err)

	res := waitGet(t, b, "a", 0, 100)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, int64(0), res.StartSeq)
	assert.Equal(t, int64(1), res.EndSeq)
	assert.Equal(t, "hintA", res.PartitionHint)
}

func TestGet_StaleStartSeqReturnsEmptyNonClosed(t *testing.T) {
	b := mustNewBuffer(t, 10_000)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": ""}, NoMoreBuffers: true}))
	_, _ = b.Enqueue(testPage{size: 100})
	_, _ = b.Enqueue(testPage{size: 100})

	first := waitGet(t, b, "a", 0, 10_000)
	require.Equal(t, int64(2), first.EndSeq)

	// Serving the first batch already advanced ack_seq to 2, so this read
	// at start_seq=2 parks waiting for page 2, which hasn't arrived yet.
	_, err := b.Get("a", 2, 10_000)
	require.NoError(t, err)

	// A retry at the old start_seq=0 is now stale relative to ack_seq=2.
	stale := waitGet(t, b, "a", 0, 10_000)
	assert.False(t, stale.Closed)
	assert.Empty(t, stale.Pages)
	assert.Equal(t, int64(0), stale.StartSeq)
}

func TestGet_ParksWhenNoDataAvailable(t *testing.T) {
	b := mustNewBuffer(t, 10_000)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": ""}, NoMoreBuffers: true}))

	sig, err := b.Get("a", 0, 10_000)
	require.NoError(t, err)
	assert.False(t, sig.IsDone())

	_, err = b.Enqueue(testPage{size: 50})
	require.NoError(t, err)
	assert.True(t, sig.IsDone())
}

func TestGet_UnregisteredConsumerAfterFinishedResolvesEmptyClosed(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	b.Destroy()

	res := waitGet(t, b, "ghost", 0, 10)
	assert.True(t, res.Closed)
	assert.Empty(t, res.Pages)
}

func TestAbort_BeforeRegistrationMarksFinishedOnRegister(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	b.Abort("c")

	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"c": ""}, NoMoreBuffers: true}))

	info := b.Info()
	require.Len(t, info.Consumers, 1)
	assert.True(t, info.Consumers[0].Finished)

	res := waitGet(t, b, "c", 0, 1000)
	assert.True(t, res.Closed)
}

func TestAbort_AfterFinishIsNoOp(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": ""}, NoMoreBuffers: true}))
	b.Abort("a")
	b.Abort("a")
	assert.True(t, b.Info().Consumers[0].Finished)
}

func TestSetOutputBuffers_RejectsDroppedConsumer(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": "", "b": ""}}))

	err := b.SetOutputBuffers(OutputBuffers[string]{Version: 1, Buffers: map[string]string{"a": ""}})
	var invErr *InvariantError
	assert.ErrorAs(t, err, &invErr)
}

func TestSetOutputBuffers_IgnoresNonIncreasingVersion(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 5, Buffers: map[string]string{"a": ""}}))
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 5, Buffers: map[string]string{}}))

	info := b.Info()
	require.Len(t, info.Consumers, 1, "a lower-or-equal version must be silently ignored")
}

func TestAdvance_DropsOnlyAfterConsumerSetFrozen(t *testing.T) {
	b := mustNewBuffer(t, 500)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": ""}}))

	_, _ = b.Enqueue(testPage{size: 200})
	_ = waitGet(t, b, "a", 0, 200)
	assert.Equal(t, int64(0), b.Info().BaseSeq, "base_seq must not advance while registration is still open")

	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 1, Buffers: map[string]string{"a": ""}, NoMoreBuffers: true}))
	// Serving the only page already set ack_seq to 1, so freezing the
	// consumer set lets the buffer drop the fully-acked head; this read at
	// start_seq=1 itself parks, since no further page has arrived.
	_, err := b.Get("a", 1, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Info().BaseSeq)
}

func TestDestroy_ResolvesOverflowAndPendingReads(t *testing.T) {
	b := mustNewBuffer(t, 100)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": ""}, NoMoreBuffers: true}))

	_, _ = b.Enqueue(testPage{size: 100})
	overflow, err := b.Enqueue(testPage{size: 100})
	require.NoError(t, err)
	assert.False(t, overflow.IsDone())

	getSig, err := b.Get("a", 5, 10)
	require.NoError(t, err)
	assert.False(t, getSig.IsDone())

	b.Destroy()

	assert.True(t, overflow.IsDone())
	res, err := getSig.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, StateFinished, b.Info().State)
}

func TestDestroy_IsIdempotent(t *testing.T) {
	b := mustNewBuffer(t, 100)
	b.Destroy()
	b.Destroy()
	assert.Equal(t, StateFinished, b.Info().State)
}

func TestFlushCompletionCheck_AllConsumersFinishedTriggersDestroy(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	require.NoError(t, b.SetOutputBuffers(OutputBuffers[string]{Version: 0, Buffers: map[string]string{"a": ""}, NoMoreBuffers: true}))
	_, _ = b.Enqueue(testPage{size: 10})
	b.SetNoMorePages()

	assert.NotEqual(t, StateFinished, b.Info().State)

	res := waitGet(t, b, "a", 1, 1000)
	assert.True(t, res.Closed)
	assert.Equal(t, StateFinished, b.Info().State)
}

func TestAddStateChangeListener_FiresOnTransition(t *testing.T) {
	b := mustNewBuffer(t, 1000)
	ch := make(chan State, 4)
	b.AddStateChangeListener(func(s State) { ch <- s })

	b.SetNoMorePages()

	select {
	case s := <-ch:
		assert.Equal(t, StateNoMorePages, s)
	case <-time.After(time.Second):
		t.Fatal("listener never fired")
	}
}
