package cache

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when a key does not exist.
	ErrNotFound = errors.New("cache: key not found")
	// ErrCommitFailed is returned when an atomic write could not be applied.
	ErrCommitFailed = errors.New("cache: atomic commit failed")
)

// Entry is a single key/value pair.
type Entry struct {
	Key   string
	Value []byte
}

// Selector picks a key range: every key starting with Prefix and, when End
// is set, strictly below End.
type Selector struct {
	Prefix string
	End    string
}

// ListOptions controls range scans.
type ListOptions struct {
	// Limit caps the number of entries returned; zero or less means no cap.
	Limit int
	// Reverse returns entries in descending key order.
	Reverse bool
}

// KV is an ordered key-value store. Keys compare bytewise.
type KV interface {
	// Commit writes all entries atomically: either every entry is stored or
	// none is, in which case the error wraps ErrCommitFailed.
	Commit(ctx context.Context, entries ...Entry) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, sel Selector, opts ListOptions) ([]Entry, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// upperBound returns the exclusive upper bound of a selector.
func (s Selector) upperBound() string {
	end := prefixEnd(s.Prefix)
	if s.End != "" && (end == "" || s.End < end) {
		return s.End
	}
	return end
}

// prefixEnd returns the smallest key greater than every key with the prefix,
// or "" when no such key exists.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
