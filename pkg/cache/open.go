package cache

import (
	"fmt"
	"time"

	"github.com/ngoyal88/auditrelay/pkg/config"
)

const sqliteBusyTimeout = 5 * time.Second

// Open builds the KV backend named by cfg.Storage.Backend. The Redis client
// is returned as well when one was connected, so callers can share it (the
// rate limiter does); it is nil for the other backends.
func Open(cfg *config.Config) (KV, *Client, error) {
	switch cfg.Storage.Backend {
	case "redis":
		rdb, err := NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		var ttl time.Duration
		if cfg.Storage.RetentionDays > 0 {
			ttl = time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
		}
		return NewRedisKV(rdb, ttl), rdb, nil
	case "sqlite":
		kv, err := NewSQLiteKV(cfg.Storage.SQLitePath, sqliteBusyTimeout)
		if err != nil {
			return nil, nil, err
		}
		return kv, nil, nil
	case "memory":
		return NewMemoryKV(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
