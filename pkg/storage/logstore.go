package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ngoyal88/auditrelay/pkg/cache"
)

const (
	timelinePrefix = "log/"
	byIDPrefix     = "logById/"

	// DefaultMaxLimit caps List when no other maximum is configured.
	DefaultMaxLimit = 200

	pruneBatch = 500
)

// LogStore implements Store on an ordered key-value backend. Each record is
// written under two keys in one commit:
//
//	log/<zero-padded ts>/<id>   newest-first scans
//	logById/<id>                point lookups
type LogStore struct {
	kv       cache.KV
	maxLimit int
}

// NewLogStore creates a LogStore. A maxLimit below 1 means DefaultMaxLimit.
func NewLogStore(kv cache.KV, maxLimit int) *LogStore {
	if maxLimit < 1 {
		maxLimit = DefaultMaxLimit
	}
	return &LogStore{kv: kv, maxLimit: maxLimit}
}

func timelineKey(ts int64, id string) string {
	return fmt.Sprintf("%s%016d/%s", timelinePrefix, ts, id)
}

func timelineBound(ts int64) string {
	return fmt.Sprintf("%s%016d", timelinePrefix, ts)
}

// Put stores rec under both lookup paths atomically.
func (s *LogStore) Put(ctx context.Context, rec *CaptureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return s.kv.Commit(ctx,
		cache.Entry{Key: timelineKey(rec.Timestamp, rec.ID), Value: data},
		cache.Entry{Key: byIDPrefix + rec.ID, Value: data},
	)
}

// Get returns the record for id or ErrNotFound.
func (s *LogStore) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	data, err := s.kv.Get(ctx, byIDPrefix+id)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec CaptureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns at most ClampLimit(limit) records, newest first. A short page
// means there is nothing older.
func (s *LogStore) List(ctx context.Context, limit int, before *int64) ([]*CaptureRecord, error) {
	sel := cache.Selector{Prefix: timelinePrefix}
	if before != nil {
		sel.End = timelineBound(max(*before, 0))
	}

	entries, err := s.kv.List(ctx, sel, cache.ListOptions{Limit: s.ClampLimit(limit), Reverse: true})
	if err != nil {
		return nil, err
	}

	out := make([]*CaptureRecord, 0, len(entries))
	for _, e := range entries {
		var rec CaptureRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			// One corrupt entry should not hide the rest of the page.
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// ClampLimit bounds limit to [1, max].
func (s *LogStore) ClampLimit(limit int) int {
	return min(s.maxLimit, max(1, limit))
}

// Prune deletes every record older than cutoff (epoch milliseconds) and
// returns how many were removed.
func (s *LogStore) Prune(ctx context.Context, cutoff int64) (int, error) {
	sel := cache.Selector{Prefix: timelinePrefix, End: timelineBound(max(cutoff, 0))}
	deleted := 0
	for {
		entries, err := s.kv.List(ctx, sel, cache.ListOptions{Limit: pruneBatch})
		if err != nil {
			return deleted, err
		}
		if len(entries) == 0 {
			return deleted, nil
		}

		keys := make([]string, 0, 2*len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key)
			if id := idFromTimelineKey(e.Key); id != "" {
				keys = append(keys, byIDPrefix+id)
			}
		}
		if err := s.kv.Delete(ctx, keys...); err != nil {
			return deleted, err
		}
		deleted += len(entries)

		if len(entries) < pruneBatch {
			return deleted, nil
		}
	}
}

func (s *LogStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func idFromTimelineKey(key string) string {
	rest := strings.TrimPrefix(key, timelinePrefix)
	_, id, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}
