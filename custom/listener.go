package custom

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/zoobzio/pipz"
	"github.com/zoobzio/streamz"
)

const (
	// defaultShell interprets listen and click commands.
	defaultShell = "bash"

	// defaultLineBuffer absorbs output bursts ahead of pacing.
	defaultLineBuffer = 16

	// defaultLineRate bounds decoded lines per second. Scripts that
	// write faster are paced, not dropped.
	defaultLineRate = 64.0

	eventBuffer = 16

	// snippetLimit bounds quoted script output in parse errors.
	snippetLimit = 120
)

const decodeStage pipz.Name = "decode"

// line carries one raw output line through the decode pipeline.
type line struct {
	Raw  string
	Data ListenData
}

// Listener runs listen commands and decodes their stdout.
type Listener struct {
	shell  string
	buffer int
	rate   float64
}

// NewListener returns a listener with the default shell, buffering,
// and pacing.
func NewListener() *Listener {
	return &Listener{
		shell:  defaultShell,
		buffer: defaultLineBuffer,
		rate:   defaultLineRate,
	}
}

// Shell sets the shell interpreting commands. Must be called before
// Stream.
func (l *Listener) Shell(shell string) *Listener {
	if shell != "" {
		l.shell = shell
	}
	return l
}

// Buffer sets the line buffer size. Zero disables buffering. Must be
// called before Stream.
func (l *Listener) Buffer(n int) *Listener {
	l.buffer = n
	return l
}

// Rate bounds decoded lines per second. Zero disables pacing. Must be
// called before Stream.
func (l *Listener) Rate(perSecond float64) *Listener {
	l.rate = perSecond
	return l
}

// Stream starts the listen command and decodes its stdout line by
// line. The returned channel carries one event per line until the
// process exits or ctx ends, then closes; an unsuccessful exit is
// reported on the stream before the close. Canceling ctx kills the
// process.
func (l *Listener) Stream(ctx context.Context, command string) (<-chan Event, error) {
	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, l.shell, "-c", command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listener stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start listener: %w", err)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go l.read(runCtx, stdout, lines, readErr)

	events := make(chan Event, eventBuffer)
	go l.decode(ctx, cancel, cmd, l.pipeline(runCtx, lines), readErr, events)
	return events, nil
}

// pipeline shapes the raw line stream: the buffer absorbs bursts, the
// throttle paces what the decoder sees.
func (l *Listener) pipeline(ctx context.Context, lines <-chan string) <-chan string {
	out := lines
	if l.buffer > 0 {
		out = streamz.NewBuffer[string](l.buffer).Process(ctx, out)
	}
	if l.rate > 0 {
		out = streamz.NewThrottle[string](l.rate, streamz.RealClock).Process(ctx, out)
	}
	return out
}

func (l *Listener) read(ctx context.Context, stdout io.Reader, lines chan<- string, readErr chan<- error) {
	defer close(lines)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		readErr <- err
	}
}

// decode turns paced lines into events, then reaps the process and
// reports how it ended. The events channel closes last so consumers
// always see the exit outcome. The wait also closes the stdout pipe,
// which is what unblocks the reader when a killed script left an
// orphan holding the write end.
func (l *Listener) decode(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, paced <-chan string, readErr <-chan error, events chan<- Event) {
	defer close(events)

	chain := l.chain()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case raw, ok := <-paced:
			if !ok {
				break loop
			}
			event := NewUpdateEvent(ListenData{})
			if ln, err := chain.Process(ctx, line{Raw: raw}); err != nil {
				event = NewErrorEvent(err)
			} else {
				event.Data = ln.Data
			}
			if !l.emit(ctx, events, event) {
				break loop
			}
		}
	}

	cancel()
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return
	}

	select {
	case err := <-readErr:
		l.emit(ctx, events, NewErrorEvent(fmt.Errorf("read listener output: %w", err)))
		return
	default:
	}

	if waitErr != nil {
		l.emit(ctx, events, NewErrorEvent(exitError(waitErr)))
	}
}

// chain is the per-line processing pipeline.
func (l *Listener) chain() pipz.Chainable[line] {
	return pipz.Apply(decodeStage, func(_ context.Context, ln line) (line, error) {
		if err := json.Unmarshal([]byte(ln.Raw), &ln.Data); err != nil {
			return ln, fmt.Errorf("parse %q: %w", truncateSnippet(ln.Raw), err)
		}
		return ln, nil
	})
}

func (l *Listener) emit(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func exitError(err error) error {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		if code := exit.ExitCode(); code >= 0 {
			return fmt.Errorf("listener exited with status %d", code)
		}
		return errors.New("listener exited on a signal")
	}
	return fmt.Errorf("wait listener: %w", err)
}

// truncateSnippet bounds a quoted output line, cutting on a rune
// boundary.
func truncateSnippet(s string) string {
	for i := range s {
		if i >= snippetLimit {
			return s[:i] + "…"
		}
	}
	return s
}
