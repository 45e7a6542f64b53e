package custom

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"
)

func nextListenerEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("listener stream ended early")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener event")
		return Event{}
	}
}

func waitStreamClosed(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case event, ok := <-events:
		if ok {
			t.Fatalf("event %+v delivered after the stream should have closed", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener stream did not close")
	}
}

func TestListener_StreamDecodesLines(t *testing.T) {
	events, err := NewListener().Rate(0).Stream(context.Background(),
		`printf '{"alt":"unread","text":"3 mails"}\n{"alt":"empty"}\n'`)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	event := nextListenerEvent(t, events)
	if event.Kind != EventUpdate {
		t.Fatalf("event = %+v, want an update", event)
	}
	if event.Data.Alt != "unread" || event.Data.Text != "3 mails" {
		t.Fatalf("Data = %+v, want the first line", event.Data)
	}

	event = nextListenerEvent(t, events)
	if event.Data.Alt != "empty" || event.Data.Text != "" {
		t.Fatalf("Data = %+v, want the second line", event.Data)
	}

	waitStreamClosed(t, events)
}

func TestListener_StreamPacesDefaults(t *testing.T) {
	events, err := NewListener().Stream(context.Background(),
		`printf '{"alt":"on"}\n'`)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	event := nextListenerEvent(t, events)
	if event.Kind != EventUpdate || event.Data.Alt != "on" {
		t.Fatalf("event = %+v, want the decoded line", event)
	}
	waitStreamClosed(t, events)
}

func TestListener_StreamReportsParseErrors(t *testing.T) {
	events, err := NewListener().Rate(0).Stream(context.Background(),
		`printf 'not json\n{"alt":"ok"}\n'`)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	event := nextListenerEvent(t, events)
	if event.Kind != EventError {
		t.Fatalf("event = %+v, want an error for the unparsable line", event)
	}
	if !strings.Contains(event.Err.Error(), `parse "not json"`) {
		t.Errorf("Err = %v, want the quoted line", event.Err)
	}

	event = nextListenerEvent(t, events)
	if event.Kind != EventUpdate || event.Data.Alt != "ok" {
		t.Fatalf("event = %+v, want decoding to continue past the bad line", event)
	}

	waitStreamClosed(t, events)
}

func TestListener_StreamReportsExitStatus(t *testing.T) {
	events, err := NewListener().Rate(0).Stream(context.Background(),
		`printf '{"alt":"x"}\n'; exit 3`)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if event := nextListenerEvent(t, events); event.Kind != EventUpdate {
		t.Fatalf("event = %+v, want the update before the exit", event)
	}

	event := nextListenerEvent(t, events)
	if event.Kind != EventError {
		t.Fatalf("event = %+v, want the exit report", event)
	}
	if !strings.Contains(event.Err.Error(), "status 3") {
		t.Errorf("Err = %v, want the exit status", event.Err)
	}

	waitStreamClosed(t, events)
}

func TestListener_StreamOrdersBursts(t *testing.T) {
	events, err := NewListener().Rate(0).Buffer(4).Stream(context.Background(),
		`for i in {1..30}; do printf '{"alt":"%s"}\n' "$i"; done`)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	for i := 1; i <= 30; i++ {
		event := nextListenerEvent(t, events)
		if event.Kind != EventUpdate {
			t.Fatalf("event %d = %+v, want an update", i, event)
		}
		if want := strconv.Itoa(i); event.Data.Alt != want {
			t.Fatalf("event %d Alt = %q, want %q", i, event.Data.Alt, want)
		}
	}
	waitStreamClosed(t, events)
}

func TestListener_StreamKillsProcessOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := NewListener().Rate(0).Stream(ctx,
		`printf '{"alt":"running"}\n'; sleep 60`)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if event := nextListenerEvent(t, events); event.Data.Alt != "running" {
		t.Fatalf("event = %+v, want the first line", event)
	}

	cancel()
	waitStreamClosed(t, events)
}

func TestListener_StreamFailsWithoutShell(t *testing.T) {
	_, err := NewListener().Shell("/nonexistent/shell").Stream(context.Background(), "true")
	if err == nil {
		t.Fatal("Stream() error = nil for a missing shell")
	}
	if !strings.Contains(err.Error(), "start listener") {
		t.Errorf("error = %v, want a start failure", err)
	}
}

func TestTruncateSnippet(t *testing.T) {
	if got := truncateSnippet("short"); got != "short" {
		t.Errorf("truncateSnippet(short) = %q, want it unchanged", got)
	}

	exact := strings.Repeat("x", snippetLimit)
	if got := truncateSnippet(exact); got != exact {
		t.Errorf("truncateSnippet() len = %d, a line at the limit stays whole", len(got))
	}

	long := strings.Repeat("x", 150)
	if got, want := truncateSnippet(long), strings.Repeat("x", snippetLimit)+"…"; got != want {
		t.Errorf("truncateSnippet() = %q, want %q", got, want)
	}

	// A rune straddling the limit survives whole.
	straddle := strings.Repeat("x", snippetLimit-1) + "étail"
	if got, want := truncateSnippet(straddle), strings.Repeat("x", snippetLimit-1)+"é…"; got != want {
		t.Errorf("truncateSnippet() = %q, want the straddling rune kept", got)
	}
}
