package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Envelope is the serialization format for every stored value. It names the
// record schema and its version so readers can reject data they don't
// understand instead of guessing.
type Envelope struct {
	Schema  string          `json:"schema"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Encode wraps v in an Envelope.
func Encode(schema string, version int, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", schema, err)
	}
	return json.Marshal(Envelope{Schema: schema, Version: version, Data: data})
}

// Decode unwraps raw into dst and returns the stored schema version.
//
// Values that are not envelopes (bare JSON exported from browser storage)
// are decoded directly and reported as version 0.
func Decode(raw []byte, schema string, maxVersion int, dst any) (int, error) {
	if env, ok := asEnvelope(raw); ok {
		if env.Schema != schema {
			return 0, fmt.Errorf("%w: want %s, got %s", ErrSchemaMismatch, schema, env.Schema)
		}
		if env.Version > maxVersion {
			return 0, fmt.Errorf("%w: %s v%d (max v%d)", ErrUnsupportedVersion, schema, env.Version, maxVersion)
		}
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return 0, fmt.Errorf("unmarshal %s: %w", schema, err)
		}
		return env.Version, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return 0, fmt.Errorf("unmarshal %s: %w", schema, err)
	}
	return 0, nil
}

func asEnvelope(raw []byte) (Envelope, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, false
	}
	if env.Schema == "" || env.Data == nil {
		return Envelope{}, false
	}
	return env, true
}

// GetJSON reads key and decodes it into dst. It returns the entry revision
// so callers can follow up with a compare-and-set Update.
func GetJSON(ctx context.Context, kv KV, key, schema string, maxVersion int, dst any) (uint64, error) {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if _, err := Decode(entry.Value, schema, maxVersion, dst); err != nil {
		return entry.Revision, err
	}
	return entry.Revision, nil
}

// PutJSON encodes v and writes it unconditionally.
func PutJSON(ctx context.Context, kv KV, key, schema string, version int, v any) error {
	data, err := Encode(schema, version, v)
	if err != nil {
		return err
	}
	_, err = kv.Put(ctx, key, data)
	return err
}
