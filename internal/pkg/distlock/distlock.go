// Package distlock provides short leases so one source object is processed
// by at most one worker at a time.
package distlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
	// Extend resets the TTL of a lock we still own, or returns ErrNotOwner.
	Extend(ctx context.Context, ttl time.Duration) error
}

// Factory builds locks by key.
type Factory func(key string) DistLock

// NewFactory returns a Redis-backed factory, or one handing out local
// no-op locks when client is nil (single-worker deployments).
func NewFactory(client *redis.Client, ttl time.Duration) Factory {
	if client == nil {
		return func(string) DistLock { return noopLock{} }
	}
	return func(key string) DistLock { return NewRedisLock(client, key, ttl) }
}

// ObjectKey is the lease key for one source object.
func ObjectKey(bucket, key string) string {
	return "ingest:" + bucket + "/" + key
}

type noopLock struct{}

func (noopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (noopLock) Release(context.Context) error         { return nil }

func (noopLock) Extend(context.Context, time.Duration) error { return nil }
