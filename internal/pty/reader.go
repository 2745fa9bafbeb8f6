package pty

import "io"

// readerEvent is produced by the reader worker: a decoded chunk, or a final
// done marker once the stream ends.
type readerEvent struct {
	chunk string
	done  bool
}

// readLoop performs blocking reads from the PTY master until EOF or a read
// error, forwarding reassembled chunks in stream order. It flushes the
// reassembler's tail and sends exactly one done event before returning. The
// loop holds no locks and never touches the child process.
func readLoop(r io.Reader, events chan<- readerEvent) {
	var ra reassembler
	for {
		n, err := r.Read(ra.readInto())
		if n > 0 {
			for _, chunk := range ra.advance(n) {
				events <- readerEvent{chunk: chunk}
			}
		}
		if err != nil || n == 0 {
			break
		}
	}
	for _, chunk := range ra.flush() {
		events <- readerEvent{chunk: chunk}
	}
	events <- readerEvent{done: true}
}
