// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package shellexec

// cappedBuffer collects process output up to a byte limit. Bytes past
// the limit are counted but discarded, so a command that floods its
// output cannot grow memory without bound. Writes never fail; a
// failing stdout pipe would otherwise kill the child with SIGPIPE
// before the engine can classify the outcome.
type cappedBuffer struct {
	limit     int64
	data      []byte
	total     int64
	truncated bool
}

func newCappedBuffer(limit int64) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.total += int64(len(p))

	remaining := b.limit - int64(len(b.data))
	switch {
	case remaining >= int64(len(p)):
		b.data = append(b.data, p...)
	case remaining > 0:
		b.data = append(b.data, p[:remaining]...)
		b.truncated = true
	default:
		b.truncated = true
	}
	return len(p), nil
}

// String returns the captured (possibly truncated) output.
func (b *cappedBuffer) String() string {
	return string(b.data)
}

// Total is the number of bytes the process actually produced,
// including discarded ones.
func (b *cappedBuffer) Total() int64 {
	return b.total
}

// Truncated reports whether any bytes were discarded.
func (b *cappedBuffer) Truncated() bool {
	return b.truncated
}
