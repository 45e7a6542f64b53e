package config

import "sync"

// errorLog retains the most recent processing errors, oldest first.
// A nil errorLog is valid and retains nothing.
type errorLog struct {
	mu     sync.Mutex
	limit  int
	recent []error
}

// newErrorLog creates an error log holding up to limit entries.
// If limit is 0 or negative, the log is disabled.
func newErrorLog(limit int) *errorLog {
	if limit <= 0 {
		return nil
	}
	return &errorLog{limit: limit}
}

// record appends an error, evicting the oldest entries past the limit.
func (l *errorLog) record(err error) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append(l.recent, err)
	if len(l.recent) > l.limit {
		trimmed := make([]error, l.limit)
		copy(trimmed, l.recent[len(l.recent)-l.limit:])
		l.recent = trimmed
	}
}

// reset drops all retained errors.
func (l *errorLog) reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = nil
}

// snapshot returns the retained errors, oldest first.
func (l *errorLog) snapshot() []error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.recent) == 0 {
		return nil
	}
	out := make([]error, len(l.recent))
	copy(out, l.recent)
	return out
}
