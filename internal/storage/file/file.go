// Package file persists each key as a JSON-safe file under a data
// directory. Writes go through a temp file and rename so a crash mid-write
// never leaves a truncated value behind.
package file

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kiospos/kiosk/internal/storage"
)

type KV struct {
	dir string
}

func New(dir string) (*KV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &KV{dir: dir}, nil
}

func (k *KV) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(k.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (k *KV) Set(_ context.Context, key string, value []byte) error {
	target := k.path(key)
	tmp, err := os.CreateTemp(k.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, target)
}

func (k *KV) Delete(_ context.Context, key string) error {
	err := os.Remove(k.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// path maps a key to a file name, hex-escaping anything that is not safe
// in a file name.
func (k *KV) path(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteString("%" + hex.EncodeToString([]byte(string(r))))
		}
	}
	return filepath.Join(k.dir, b.String()+".json")
}
