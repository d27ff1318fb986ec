// Package storage provides the key-value repository that backs the portal.
//
// Every record the browser front-end used to keep in local storage lives
// under the same key here. Three backends are available: an in-process map,
// a NATS JetStream KV bucket, and a SQLite file.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Entry is a stored value together with its revision.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KV is the storage contract shared by all backends.
type KV interface {
	// Get returns the current entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)

	// Put writes value unconditionally and returns the new revision.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Update writes value only if the stored revision equals lastRevision.
	// A lastRevision of 0 means the key must not exist yet.
	// Returns ErrConflict when the precondition fails.
	Update(ctx context.Context, key string, value []byte, lastRevision uint64) (uint64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MaxTransactAttempts bounds the retries Transact performs on conflict.
const MaxTransactAttempts = 8

// Transact runs a read-modify-write cycle on key. fn receives the current
// value (nil when the key does not exist) and returns the value to store.
// The write is a compare-and-set; on conflict the cycle is retried with a
// fresh read.
func Transact(ctx context.Context, kv KV, key string, fn func(current []byte) ([]byte, error)) error {
	for attempt := 0; attempt < MaxTransactAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			current  []byte
			revision uint64
		)
		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current = entry.Value
			revision = entry.Revision
		case errors.Is(err, ErrNotFound):
		default:
			return fmt.Errorf("read %s: %w", key, err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if _, err := kv.Update(ctx, key, next, revision); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return fmt.Errorf("write %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("write %s: %w after %d attempts", key, ErrConflict, MaxTransactAttempts)
}
