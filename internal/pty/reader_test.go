package pty

import (
	"io"
	"strings"
	"testing"
	"time"
)

// runReader drives readLoop over r and returns the collected chunks and the
// number of done events observed.
func runReader(t *testing.T, r io.Reader) ([]string, int) {
	t.Helper()
	events := make(chan readerEvent, eventBuffer)
	go readLoop(r, events)

	var chunks []string
	doneCount := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.done {
				doneCount++
				// Give a misbehaving loop a chance to send extras.
				select {
				case ev := <-events:
					if ev.done {
						doneCount++
					}
				case <-time.After(50 * time.Millisecond):
				}
				return chunks, doneCount
			}
			chunks = append(chunks, ev.chunk)
		case <-deadline:
			t.Fatal("reader did not finish")
		}
	}
}

func TestReadLoop_ChunksThenDone(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("first"))
		pw.Write([]byte("second"))
		pw.Close()
	}()

	chunks, done := runReader(t, pr)
	if got := strings.Join(chunks, ""); got != "firstsecond" {
		t.Errorf("chunks = %q, want %q", got, "firstsecond")
	}
	if done != 1 {
		t.Errorf("done events = %d, want 1", done)
	}
}

func TestReadLoop_SplitRuneAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	raw := []byte("日本語")
	go func() {
		for _, b := range raw {
			pw.Write([]byte{b})
		}
		pw.Close()
	}()

	chunks, done := runReader(t, pr)
	if got := strings.Join(chunks, ""); got != "日本語" {
		t.Errorf("chunks = %q, want %q", got, "日本語")
	}
	if done != 1 {
		t.Errorf("done events = %d, want 1", done)
	}
}

func TestReadLoop_FlushesTailOnClose(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte{'a', 0xe4, 0xb8}) // truncated sequence at EOF
		pw.Close()
	}()

	chunks, done := runReader(t, pr)
	if got := strings.Join(chunks, ""); got != "a�" {
		t.Errorf("chunks = %q, want %q", got, "a�")
	}
	if done != 1 {
		t.Errorf("done events = %d, want 1", done)
	}
}
