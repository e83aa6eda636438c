package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"prism-todo/store"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendTable  = "table"
	BackendMemory = "memory"
)

var (
	_ store.Slot = (*MemorySlot)(nil)
	_ store.Slot = (*FileSlot)(nil)
	_ store.Slot = (*SQLiteSlot)(nil)
	_ store.Slot = (*RedisSlot)(nil)
	_ store.Slot = (*TableSlot)(nil)
)

// Options selects and configures a slot backend.
type Options struct {
	Backend               string
	FileDir               string
	SQLitePath            string
	RedisURL              string
	RedisPrefix           string
	TableConnectionString string
	TableName             string
	TablePartition        string
}

// Open returns the configured slot and a function releasing its resources.
func Open(ctx context.Context, o Options) (store.Slot, func() error, error) {
	noop := func() error { return nil }
	switch o.Backend {
	case "", BackendFile:
		slot, err := NewFileSlot(o.FileDir)
		if err != nil {
			return nil, nil, err
		}
		return slot, noop, nil
	case BackendSQLite:
		slot, err := OpenSQLite(ctx, o.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return slot, slot.Close, nil
	case BackendRedis:
		opts, err := ParseRedisURL(o.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rc := redis.NewClient(opts)
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("redis slot: %w", err)
		}
		return NewRedisSlot(rc, o.RedisPrefix), rc.Close, nil
	case BackendTable:
		slot, err := NewTableSlot(o.TableConnectionString, o.TableName, o.TablePartition)
		if err != nil {
			return nil, nil, err
		}
		return slot, noop, nil
	case BackendMemory:
		return NewMemorySlot(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", o.Backend)
	}
}
