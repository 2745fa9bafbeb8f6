// Package pty implements the interactive PTY command engine: a session
// handle that runs one shell command at a time attached to a pseudo-terminal,
// streams its output as it is produced, accepts input and resize requests
// while it runs, and terminates deterministically on exit, kill, or timeout.
package pty

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/acolita/pty-shell-mcp/internal/task"
)

// Terminal size bounds and defaults.
const (
	MinCols, MaxCols = 20, 400
	MinRows, MaxRows = 5, 200
	DefaultCols      = 120
	DefaultRows      = 40
)

const (
	defaultPollInterval = 16 * time.Millisecond
	controlBuffer       = 64
	eventBuffer         = 64
	emitBuffer          = 256
)

var (
	// ErrAlreadyRunning is returned by Start while a prior run is in flight.
	ErrAlreadyRunning = errors.New("pty: session already running")
	// ErrNotRunning is returned by control operations when no run is active.
	ErrNotRunning = errors.New("pty: session is not running")
	// ErrSessionGone is returned by control operations that lost the race
	// against run-loop shutdown.
	ErrSessionGone = errors.New("pty: session is no longer available")
)

// RunConfig describes a single command run. It is not modified once the run
// starts.
type RunConfig struct {
	// Command is passed to an interactive shell as `sh -lc <command>`.
	Command string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env entries are merged additively onto the inherited environment.
	Env map[string]string
	// Cols and Rows set the initial terminal size. Zero selects the
	// default; values are clamped to [MinCols,MaxCols] and [MinRows,MaxRows].
	Cols uint16
	Rows uint16
	// PollInterval overrides the run-loop tick. Zero selects the default.
	PollInterval time.Duration
}

// RunResult is the final outcome of a run. Cancelled and TimedOut are
// mutually exclusive; both are false on ordinary completion.
type RunResult struct {
	ExitCode  int  `json:"exit_code"`
	Cancelled bool `json:"cancelled"`
	TimedOut  bool `json:"timed_out"`
}

// ChunkFunc receives decoded output chunks in stream order. It runs on a
// dedicated goroutine; a slow callback never stalls the run loop.
type ChunkFunc func(chunk string)

type controlKind int

const (
	controlInput controlKind = iota
	controlResize
	controlKill
)

type controlMessage struct {
	kind controlKind
	data string
	cols uint16
	rows uint16
}

// activeRun is the capability installed in the session slot for the lifetime
// of one run. done is closed by the run loop before the slot clears, so
// senders can distinguish a finished loop from an idle session.
type activeRun struct {
	control chan controlMessage
	done    chan struct{}
}

// Session owns zero or one active PTY run and forwards control messages into
// it. All methods are safe for concurrent use; callers only ever enqueue
// messages and never block on PTY state.
type Session struct {
	mu  sync.Mutex
	run *activeRun
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{}
}

// Running reports whether a run is currently in flight.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Start launches cfg.Command on a fresh PTY and returns a future resolving
// to the run's result. It fails with ErrAlreadyRunning while a prior run's
// slot has not cleared. The slot is installed before dispatch so Write, Kill
// and Resize work immediately, and cleared on every run-loop exit path.
func (s *Session) Start(cfg RunConfig, tok *task.CancelToken, onChunk ChunkFunc) (*task.Future[RunResult], error) {
	cfg.Cols = clampSize(cfg.Cols, DefaultCols, MinCols, MaxCols)
	cfg.Rows = clampSize(cfg.Rows, DefaultRows, MinRows, MaxRows)

	s.mu.Lock()
	if s.run != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	run := &activeRun{
		control: make(chan controlMessage, controlBuffer),
		done:    make(chan struct{}),
	}
	s.run = run
	s.mu.Unlock()

	fut := task.Go("pty.start", func() (RunResult, error) {
		defer func() {
			close(run.done)
			s.mu.Lock()
			s.run = nil
			s.mu.Unlock()
		}()
		return runCommand(cfg, onChunk, run.control, tok)
	})
	return fut, nil
}

// Write sends raw input bytes to the running command's terminal.
func (s *Session) Write(data string) error {
	return s.send(controlMessage{kind: controlInput, data: data})
}

// Resize applies a new terminal size to the active run. Values are clamped
// to the same bounds as RunConfig.
func (s *Session) Resize(cols, rows uint16) error {
	return s.send(controlMessage{
		kind: controlResize,
		cols: clampSize(cols, MinCols, MinCols, MaxCols),
		rows: clampSize(rows, MinRows, MinRows, MaxRows),
	})
}

// Kill requests a best-effort kill of the running command. The eventual
// result reports Cancelled.
func (s *Session) Kill() error {
	return s.send(controlMessage{kind: controlKill})
}

func (s *Session) send(msg controlMessage) error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return ErrNotRunning
	}
	// The control channel is buffered, so a plain two-way select could pick
	// the send even after done closed and drop the message into a dead
	// channel. Check done first so a finished loop always reports gone.
	select {
	case <-run.done:
		return ErrSessionGone
	default:
	}
	select {
	case <-run.done:
		return ErrSessionGone
	case run.control <- msg:
		return nil
	}
}

func clampSize(v, def, lo, hi uint16) uint16 {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type waitOutcome struct {
	code int
	err  error
}

// waitChild reaps the child exactly once. A child killed by a signal maps to
// the shell convention 128+signal.
func waitChild(cmd *exec.Cmd) waitOutcome {
	err := cmd.Wait()
	if err == nil {
		return waitOutcome{code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return waitOutcome{code: 128 + int(ws.Signal())}
		}
		return waitOutcome{code: exitErr.ExitCode()}
	}
	return waitOutcome{err: err}
}

func killChild(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Best effort: the process may already be exiting.
	_ = cmd.Process.Kill()
}

// runCommand is the run loop. It is the only goroutine that touches the PTY
// writer and the child process; the reader worker owns the read side. Each
// tick it polls cancellation, drains queued control messages, drains queued
// reader events, and polls the exit status, until the child has exited and
// the reader has reported end of stream.
func runCommand(cfg RunConfig, onChunk ChunkFunc, control <-chan controlMessage, tok *task.CancelToken) (RunResult, error) {
	cmd := exec.Command("sh", "-lc", cfg.Command)
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: cfg.Rows, Cols: cfg.Cols})
	if err != nil {
		return RunResult{}, fmt.Errorf("start pty: %w", err)
	}
	defer ptmx.Close()

	slog.Debug("pty command started",
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("cols", int(cfg.Cols)),
		slog.Int("rows", int(cfg.Rows)),
	)

	events := make(chan readerEvent, eventBuffer)
	var reader sync.WaitGroup
	reader.Add(1)
	go func() {
		defer reader.Done()
		readLoop(ptmx, events)
	}()

	// Chunk delivery runs on its own goroutine so the loop never waits on
	// the caller's callback. A single consumer preserves stream order.
	emit := make(chan string, emitBuffer)
	var emitter sync.WaitGroup
	if onChunk != nil {
		emitter.Add(1)
		go func() {
			defer emitter.Done()
			for chunk := range emit {
				onChunk(chunk)
			}
		}()
	}

	waitCh := make(chan waitOutcome, 1)
	go func() { waitCh <- waitChild(cmd) }()

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	var (
		res        RunResult
		haveExit   bool
		exitCode   int
		waitErr    error
		readerDone bool
	)

	for !haveExit || !readerDone {
		if err := tok.Heartbeat(); err != nil && !res.Cancelled && !res.TimedOut {
			if errors.Is(err, task.ErrTimeout) {
				res.TimedOut = true
			} else {
				res.Cancelled = true
			}
			killChild(cmd)
		}

	controls:
		for {
			select {
			case msg := <-control:
				switch msg.kind {
				case controlInput:
					// Best effort: the PTY may already be closing.
					_, _ = ptmx.WriteString(msg.data)
				case controlResize:
					_ = pty.Setsize(ptmx, &pty.Winsize{Rows: msg.rows, Cols: msg.cols})
				case controlKill:
					// A timeout that already fired wins; Cancelled and
					// TimedOut are mutually exclusive in the result.
					if !res.TimedOut {
						res.Cancelled = true
					}
					killChild(cmd)
				}
			default:
				break controls
			}
		}

	drain:
		for !readerDone {
			select {
			case ev := <-events:
				if ev.done {
					readerDone = true
					break drain
				}
				if onChunk != nil {
					emit <- ev.chunk
				}
			default:
				break drain
			}
		}

		if !haveExit {
			select {
			case w := <-waitCh:
				haveExit = true
				exitCode, waitErr = w.code, w.err
			default:
			}
		}

		if !haveExit || !readerDone {
			time.Sleep(interval)
		}
	}

	reader.Wait()
	if onChunk != nil {
		close(emit)
		emitter.Wait()
	}

	if waitErr != nil {
		return RunResult{}, fmt.Errorf("wait pty process: %w", waitErr)
	}
	res.ExitCode = exitCode
	return res, nil
}
