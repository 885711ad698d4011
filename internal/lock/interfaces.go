// Package lock serializes registrations of the same e-mail address.
// Single-node deployments use in-memory locks.
// Several server instances sharing one database coordinate through Redis.
package lock

import (
	"context"
	"time"
)

// Lease is proof that its holder acquired Key. Token identifies this one
// acquisition, so a lease that expired and was taken over by someone else
// can no longer release the key.
type Lease struct {
	Key   string
	Token string
}

// Locker hands out expiring, owner-checked leases on keys.
type Locker interface {
	// TryAcquire takes key for ttl. It returns a nil Lease when the key is
	// held by a live lease.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)

	// Release frees the key if lease still owns it. It reports false when the
	// lease had already expired or been replaced.
	Release(ctx context.Context, lease *Lease) (bool, error)
}

// Acquire polls locker until key is taken or wait elapses.
// A nil Lease with a nil error means the key stayed busy for the whole wait.
func Acquire(ctx context.Context, locker Locker, key string, ttl, wait, poll time.Duration) (*Lease, error) {
	deadline := time.Now().Add(wait)
	for {
		lease, err := locker.TryAcquire(ctx, key, ttl)
		if err != nil || lease != nil {
			return lease, err
		}
		if !time.Now().Add(poll).Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Keys provides lock key generation.
var Keys = lockKeys{}

type lockKeys struct{}

// Registration returns the lock key for registering an e-mail address.
func (lockKeys) Registration(email string) string {
	return "lock:registration:" + email
}
