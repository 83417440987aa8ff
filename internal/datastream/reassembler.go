package datastream

import "bytes"

// DefaultMaxLineBytes bounds the pending buffer when no explicit limit is configured.
const DefaultMaxLineBytes = 10 * 1024 * 1024

// Reassembler turns an unbounded sequence of byte chunks into complete newline-terminated
// lines. The incomplete tail of the last chunk is retained until the next Feed.
//
// Splitting is done on raw bytes and a line is converted to a string only once it is complete,
// so multi-byte UTF-8 characters split across chunk boundaries survive intact.
//
// A Reassembler is not safe for concurrent use; it belongs to exactly one stream.
type Reassembler struct {
	pending  []byte
	maxBytes int
	// discarding is set after an oversized tail was dropped; bytes are skipped until the next newline.
	discarding bool
	oversized  int
}

// NewReassembler creates a Reassembler. maxBytes <= 0 selects DefaultMaxLineBytes.
func NewReassembler(maxBytes int) *Reassembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}
	return &Reassembler{maxBytes: maxBytes}
}

// Feed appends chunk and returns every line completed by it, without line terminators.
// Empty lines are returned as empty strings; the decoder skips them.
func (r *Reassembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	var lines []string
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			if !r.discarding {
				r.pending = append(r.pending, chunk...)
				if len(r.pending) > r.maxBytes {
					r.pending = r.pending[:0]
					r.discarding = true
					r.oversized++
				}
			}
			break
		}
		if r.discarding {
			r.discarding = false
		} else {
			r.pending = append(r.pending, chunk[:idx]...)
			if len(r.pending) > r.maxBytes {
				r.oversized++
			} else {
				lines = append(lines, string(trimCR(r.pending)))
			}
		}
		r.pending = r.pending[:0]
		chunk = chunk[idx+1:]
	}
	return lines
}

// Flush returns the remaining unterminated fragment at end of stream.
// ok is false when nothing but whitespace is left.
func (r *Reassembler) Flush() (line string, ok bool) {
	if r.discarding {
		r.discarding = false
		r.pending = r.pending[:0]
		return "", false
	}
	rest := trimCR(r.pending)
	r.pending = r.pending[:0]
	if len(bytes.TrimSpace(rest)) == 0 {
		return "", false
	}
	return string(rest), true
}

// Pending reports how many bytes are buffered waiting for a newline.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// Oversized reports how many lines were discarded for exceeding the size limit.
func (r *Reassembler) Oversized() int {
	return r.oversized
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
