package file

import (
	"context"
	"errors"
	"testing"

	"kiospos/kiosk/internal/storage"
)

func TestRoundTrip(t *testing.T) {
	kv, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, err := kv.Get(ctx, "store_kiosk"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing key: %v", err)
	}

	if err := kv.Set(ctx, "store_kiosk", []byte(`{"products":{}}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := kv.Get(ctx, "store_kiosk")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"products":{}}` {
		t.Fatalf("got %q", got)
	}

	if err := kv.Set(ctx, "store_kiosk", []byte(`{"products":{"a":1}}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = kv.Get(ctx, "store_kiosk")
	if string(got) != `{"products":{"a":1}}` {
		t.Fatalf("overwrite not visible: %q", got)
	}

	if err := kv.Delete(ctx, "store_kiosk"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := kv.Get(ctx, "store_kiosk"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted key: %v", err)
	}
	// Deleting again is not an error.
	if err := kv.Delete(ctx, "store_kiosk"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestUnsafeKeysAreEscaped(t *testing.T) {
	kv, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	keys := []string{"a/b", "a b", "toko:utama", "../../escape"}
	for _, key := range keys {
		if err := kv.Set(ctx, key, []byte(key)); err != nil {
			t.Fatalf("set %q: %v", key, err)
		}
	}
	for _, key := range keys {
		got, err := kv.Get(ctx, key)
		if err != nil {
			t.Fatalf("get %q: %v", key, err)
		}
		if string(got) != key {
			t.Fatalf("key %q read back %q", key, got)
		}
	}
}
