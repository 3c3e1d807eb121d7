package redis

import (
	"context"
	"errors"

	redislib "github.com/redis/go-redis/v9"

	"kiospos/kiosk/internal/storage"
)

type KV struct {
	client *redislib.Client
	prefix string
}

func New(addr string, password string, db int, prefix string) *KV {
	client := redislib.NewClient(&redislib.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &KV{client: client, prefix: prefix}
}

func (k *KV) Ping(ctx context.Context) error {
	return k.client.Ping(ctx).Err()
}

func (k *KV) Close() error {
	return k.client.Close()
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := k.client.Get(ctx, k.prefix+key).Bytes()
	if errors.Is(err, redislib.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	// No TTL: snapshots and the pending log must survive until replaced.
	return k.client.Set(ctx, k.prefix+key, value, 0).Err()
}

func (k *KV) Delete(ctx context.Context, key string) error {
	return k.client.Del(ctx, k.prefix+key).Err()
}
