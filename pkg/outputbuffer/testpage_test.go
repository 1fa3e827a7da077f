package outputbuffer

// testPage is the minimal Page implementation used across this package's
// tests: an opaque payload whose only observable property is its size.
type testPage struct {
	size int64
}

func (p testPage) SizeBytes() int64 { return p.size }
