package outputbuffer

// Page is an opaque, immutable unit of transfer between operators. The
// buffer never interprets the payload, only the byte size charged against
// its budget.
type Page interface {
	SizeBytes() int64
}

// OutputBuffers is a versioned snapshot of the consumer set, pushed in by
// the control plane via Buffer.SetOutputBuffers. H is the opaque
// partitioning hint type associated with each consumer id; the buffer
// stores it and returns it verbatim with every result batch for that
// consumer.
//
// Invariants (enforced by SetOutputBuffers, spec §3):
//   - the set of ids in version v+1 must be a superset of the set in v
//   - once NoMoreBuffers is true in any accepted version, it is sticky
type OutputBuffers[H any] struct {
	Version       int64
	Buffers       map[string]H
	NoMoreBuffers bool
}

// GetResult is what a Get call resolves to: a contiguous slice of the
// master stream for one consumer, or an empty/closed terminal marker.
type GetResult[H any] struct {
	StartSeq      int64
	EndSeq        int64
	Closed        bool
	Pages         []Page
	PartitionHint H
}

// ConsumerInfo is the per-consumer slice of Info's observability snapshot.
type ConsumerInfo struct {
	ID       string
	Finished bool
	InFlight bool
	AckSeq   int64
}

// Info is the lock-light observability snapshot returned by Buffer.Info.
type Info struct {
	State      State
	BaseSeq    int64
	PagesAdded int64
	Consumers  []ConsumerInfo
}
