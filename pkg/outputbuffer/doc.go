// Package outputbuffer implements the shuffle output buffer that sits at the
// boundary between a task's local operator pipeline and its remote
// consumers. A single producer appends pages; any number of named
// consumers pull them back out by sequence id, each independently tracking
// its own acknowledgement cursor. The buffer enforces a bounded in-memory
// byte budget with producer backpressure and coordinates the task's
// end-of-stream lifecycle so the task can be declared finished only once
// every consumer has acknowledged every page.
//
// Everything here is process-local. Wire serialization, HTTP/gRPC
// transport, and the task scheduler that decides where a task runs are
// all external collaborators reached through the narrow interfaces in
// this package (Page, the OutputBuffers descriptor, and Signal) rather
// than anything this package implements directly.
package outputbuffer
