package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// errCodeWrongLastSequence is the JetStream API error code for a failed
// expected-last-sequence check.
const errCodeWrongLastSequence = 10071

// DefaultBucket is the JetStream KV bucket holding portal records.
const DefaultBucket = "ABEMIS_PORTAL"

// NATSStore is a KV backed by a JetStream key-value bucket.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NATSOptions configures the bucket NewNATSStore creates.
type NATSOptions struct {
	// Bucket is the bucket name. Defaults to DefaultBucket.
	Bucket string
	// History is the number of revisions kept per key. Defaults to 5.
	History uint8
}

// NewNATSStore opens the configured bucket, creating it if it doesn't exist.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, opts NATSOptions) (*NATSStore, error) {
	if opts.Bucket == "" {
		opts.Bucket = DefaultBucket
	}
	if opts.History == 0 {
		opts.History = 5
	}
	kv, err := getOrCreateBucket(ctx, js, opts)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", opts.Bucket, err)
	}
	return &NATSStore{kv: kv}, nil
}

// NewNATSStoreFromBucket wraps an already opened bucket.
func NewNATSStoreFromBucket(kv jetstream.KeyValue) *NATSStore {
	return &NATSStore{kv: kv}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, opts NATSOptions) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, opts.Bucket)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      opts.Bucket,
		Description: fmt.Sprintf("ABEMIS %s storage", strings.ToLower(opts.Bucket)),
		History:     opts.History,
	})
}

// Get implements KV.
func (s *NATSStore) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	return Entry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put implements KV.
func (s *NATSStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return rev, nil
}

// Update implements KV.
func (s *NATSStore) Update(ctx context.Context, key string, value []byte, lastRevision uint64) (uint64, error) {
	var (
		rev uint64
		err error
	)
	if lastRevision == 0 {
		rev, err = s.kv.Create(ctx, key, value)
	} else {
		rev, err = s.kv.Update(ctx, key, value, lastRevision)
	}
	if err != nil {
		if isConflict(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("update %s: %w", key, err)
	}
	return rev, nil
}

// Delete implements KV.
func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys implements KV.
func (s *NATSStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		errors.Is(err, jetstream.ErrKeyDeleted) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}

// isConflict checks if an error is a failed compare-and-set.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == errCodeWrongLastSequence {
		return true
	}
	return strings.Contains(err.Error(), "wrong last sequence")
}
