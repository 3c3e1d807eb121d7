// Package storage defines the durable key/value contract shared by the
// optimistic store snapshot and the pending operation log. Writes are
// best-effort from the caller's point of view: mutation paths log and
// swallow persistence failures rather than blocking the user action.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
