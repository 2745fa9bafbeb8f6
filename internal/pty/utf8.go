package pty

import "unicode/utf8"

// replacement is substituted for byte sequences that cannot be decoded.
const replacement = "\uFFFD"

const (
	// readChunkSize is the window offered to each raw PTY read.
	readChunkSize = 4096
	// carrySlack leaves room for one maximal code point split across reads.
	carrySlack = 4
)

// reassembler turns raw PTY reads, cut at arbitrary byte boundaries, into
// well-formed UTF-8 chunks. Incomplete trailing sequences are carried into
// the next read; structurally invalid sequences become a single replacement
// character each. No byte is ever dropped silently.
type reassembler struct {
	buf [readChunkSize + carrySlack]byte
	n   int
}

// readInto returns the buffer window the next raw read should fill. The
// carried tail is at most carrySlack-1 bytes, so the window never collapses.
func (r *reassembler) readInto() []byte {
	return r.buf[r.n:readChunkSize]
}

// advance consumes n freshly read bytes and returns the decoded chunks, in
// stream order. Any trailing incomplete sequence stays buffered.
func (r *reassembler) advance(n int) []string {
	r.n += n
	var chunks []string
	for r.n > 0 {
		pending := r.buf[:r.n]
		valid := validPrefixLen(pending)
		if valid > 0 {
			chunks = append(chunks, string(pending[:valid]))
			r.shift(valid)
			continue
		}
		skip, incomplete := maximalSubpart(pending)
		if incomplete {
			break
		}
		chunks = append(chunks, replacement)
		r.shift(skip)
	}
	return chunks
}

// flush drains the buffer at end of stream. A trailing incomplete sequence
// can no longer complete and is replaced.
func (r *reassembler) flush() []string {
	var chunks []string
	for r.n > 0 {
		pending := r.buf[:r.n]
		valid := validPrefixLen(pending)
		if valid > 0 {
			chunks = append(chunks, string(pending[:valid]))
			r.shift(valid)
			continue
		}
		skip, _ := maximalSubpart(pending)
		chunks = append(chunks, replacement)
		r.shift(skip)
	}
	return chunks
}

func (r *reassembler) shift(n int) {
	copy(r.buf[:], r.buf[n:r.n])
	r.n -= n
}

// validPrefixLen returns the length of the longest valid UTF-8 prefix of p.
func validPrefixLen(p []byte) int {
	i := 0
	for i < len(p) {
		if p[i] < utf8.RuneSelf {
			i++
			continue
		}
		c, size := utf8.DecodeRune(p[i:])
		if c == utf8.RuneError && size <= 1 {
			break
		}
		i += size
	}
	return i
}

// sequenceInfo returns the expected sequence length for a leading byte and
// the valid range of its first continuation byte. A zero size means b cannot
// start a multi-byte sequence.
func sequenceInfo(b byte) (size int, lo, hi byte) {
	switch {
	case b >= 0xC2 && b <= 0xDF:
		return 2, 0x80, 0xBF
	case b == 0xE0:
		return 3, 0xA0, 0xBF
	case b >= 0xE1 && b <= 0xEC, b == 0xEE, b == 0xEF:
		return 3, 0x80, 0xBF
	case b == 0xED:
		return 3, 0x80, 0x9F
	case b == 0xF0:
		return 4, 0x90, 0xBF
	case b >= 0xF1 && b <= 0xF3:
		return 4, 0x80, 0xBF
	case b == 0xF4:
		return 4, 0x80, 0x8F
	default:
		return 0, 0, 0
	}
}

// maximalSubpart measures the ill-formed sequence at the start of p: the
// number of bytes one replacement stands for, and whether the bytes are a
// truncated prefix that more input could still complete.
func maximalSubpart(p []byte) (n int, incomplete bool) {
	size, lo, hi := sequenceInfo(p[0])
	if size == 0 {
		return 1, false
	}
	n = 1
	for n < size {
		if n >= len(p) {
			return n, true
		}
		c := p[n]
		if n == 1 {
			if c < lo || c > hi {
				return n, false
			}
		} else if c&0xC0 != 0x80 {
			return n, false
		}
		n++
	}
	return n, false
}
