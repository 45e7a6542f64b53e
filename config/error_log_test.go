package config

import (
	"errors"
	"testing"
)

func TestErrorLog_NilSafe(t *testing.T) {
	var l *errorLog

	// All operations should be safe on nil
	l.record(errors.New("test"))
	l.reset()

	if l.snapshot() != nil {
		t.Error("expected nil from nil log")
	}
}

func TestErrorLog_Disabled(t *testing.T) {
	if newErrorLog(0) != nil {
		t.Error("expected nil log for limit 0")
	}
	if newErrorLog(-1) != nil {
		t.Error("expected nil log for negative limit")
	}
}

func TestErrorLog_OldestFirst(t *testing.T) {
	l := newErrorLog(3)

	l.record(errors.New("error1"))
	l.record(errors.New("error2"))
	l.record(errors.New("error3"))

	errs := l.snapshot()
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(errs))
	}
	for i, want := range []string{"error1", "error2", "error3"} {
		if errs[i].Error() != want {
			t.Errorf("expected %s at %d, got %s", want, i, errs[i].Error())
		}
	}
}

func TestErrorLog_EvictsOldest(t *testing.T) {
	l := newErrorLog(2)

	l.record(errors.New("error1"))
	l.record(errors.New("error2"))
	l.record(errors.New("error3"))

	errs := l.snapshot()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].Error() != "error2" || errs[1].Error() != "error3" {
		t.Errorf("expected [error2 error3], got [%s %s]", errs[0], errs[1])
	}
}

func TestErrorLog_Reset(t *testing.T) {
	l := newErrorLog(3)

	l.record(errors.New("error1"))
	l.reset()

	if l.snapshot() != nil {
		t.Error("expected empty snapshot after reset")
	}

	// Still usable after reset
	l.record(errors.New("error2"))
	if errs := l.snapshot(); len(errs) != 1 {
		t.Errorf("expected 1 error after reset, got %d", len(errs))
	}
}

func TestErrorLog_SnapshotIsCopy(t *testing.T) {
	l := newErrorLog(3)
	l.record(errors.New("error1"))

	errs := l.snapshot()
	errs[0] = errors.New("mutated")

	if got := l.snapshot(); got[0].Error() != "error1" {
		t.Errorf("expected snapshot isolation, got %s", got[0].Error())
	}
}
