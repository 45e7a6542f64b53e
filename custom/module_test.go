package custom

import (
	"errors"
	"strings"
	"testing"

	"github.com/zoobzio/bosun/config"
)

func TestEventKind_String(t *testing.T) {
	cases := []struct {
		kind EventKind
		want string
	}{
		{EventUpdate, "update"},
		{EventError, "error"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range cases {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestState_Update(t *testing.T) {
	var state State

	state.Update(NewUpdateEvent(ListenData{Alt: "unread", Text: "3 mails"}))
	if state.Data.Alt != "unread" || state.Data.Text != "3 mails" {
		t.Fatalf("Data = %+v, want the decoded line", state.Data)
	}
	if state.Err != nil {
		t.Fatalf("Err = %v, want nil", state.Err)
	}

	state.Update(NewErrorEvent(errors.New("listener exited with status 1")))
	if state.Err == nil {
		t.Fatal("Err = nil after an error event")
	}
	if state.Data.Alt != "unread" {
		t.Fatalf("Data.Alt = %q, an error should keep the last data", state.Data.Alt)
	}

	state.Update(NewUpdateEvent(ListenData{Alt: "empty"}))
	if state.Err != nil {
		t.Fatalf("Err = %v, an update should clear the error", state.Err)
	}
	if state.Data.Alt != "empty" || state.Data.Text != "" {
		t.Fatalf("Data = %+v, want the update to replace the data", state.Data)
	}
}

func TestNewModule(t *testing.T) {
	mod, err := NewModule(config.CustomModule{
		Name:      "mail",
		Command:   "xdg-open https://mail.example.org",
		Icon:      "M",
		ListenCmd: "mail-watch",
		Icons: map[string]string{
			"^unread": "U",
			"^empty":  "E",
		},
		Alert: "^urgent",
	})
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}
	if mod.Name != "mail" || mod.Listen != "mail-watch" {
		t.Fatalf("module = %+v, want the definition carried over", mod)
	}

	if got := mod.IconFor("unread (3)"); got != "U" {
		t.Errorf("IconFor(unread) = %q, want %q", got, "U")
	}
	if got := mod.IconFor("empty"); got != "E" {
		t.Errorf("IconFor(empty) = %q, want %q", got, "E")
	}
	if got := mod.IconFor("syncing"); got != "M" {
		t.Errorf("IconFor(syncing) = %q, want the static icon %q", got, "M")
	}

	if mod.Alerts(State{Data: ListenData{Alt: "urgent: disk full"}}) != true {
		t.Error("Alerts() = false for an alt matching the alert pattern")
	}
	if mod.Alerts(State{Data: ListenData{Alt: "empty"}}) != false {
		t.Error("Alerts() = true for a calm alt")
	}
	if mod.Alerts(State{Err: errors.New("parse")}) != true {
		t.Error("Alerts() = false for an errored state")
	}
}

func TestNewModule_IconOrderStable(t *testing.T) {
	mod, err := NewModule(config.CustomModule{
		Name:    "order",
		Command: "true",
		Icons: map[string]string{
			"b": "B",
			"a": "A",
		},
	})
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}
	// Both patterns match; the lexically first one wins every time.
	if got := mod.IconFor("ab"); got != "A" {
		t.Errorf("IconFor(ab) = %q, want %q", got, "A")
	}
}

func TestNewModule_BadIconPattern(t *testing.T) {
	_, err := NewModule(config.CustomModule{
		Name:    "broken",
		Command: "true",
		Icons:   map[string]string{"(": "X"},
	})
	if err == nil {
		t.Fatal("NewModule() error = nil for an invalid icon pattern")
	}
	if !strings.Contains(err.Error(), `icon pattern "("`) {
		t.Errorf("error = %v, want it to name the icon pattern", err)
	}
}

func TestNewModule_BadAlertPattern(t *testing.T) {
	_, err := NewModule(config.CustomModule{
		Name:    "broken",
		Command: "true",
		Alert:   "(",
	})
	if err == nil {
		t.Fatal("NewModule() error = nil for an invalid alert pattern")
	}
	if !strings.Contains(err.Error(), `alert pattern "("`) {
		t.Errorf("error = %v, want it to name the alert pattern", err)
	}
}

func TestNewModule_NoAlertPattern(t *testing.T) {
	mod, err := NewModule(config.CustomModule{Name: "plain", Command: "true"})
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}
	if mod.Alerts(State{Data: ListenData{Alt: "urgent"}}) {
		t.Error("Alerts() = true with no alert pattern and no error")
	}
}
