package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-portal/core"
)

const keyPrefix = "masomo:portal:"

type (
	// Store keeps each namespace in its own redis hash, expiring ttl after the last write.
	Store struct {
		client *redis.Client
		ttl    time.Duration
	}

	storage struct {
		store *Store
		key   string
	}
)

var (
	_ core.StorageProvider = (*Store)(nil)
	_ core.Storage         = (*storage)(nil)
)

// Open connects to redis and waits for it to answer.
func Open(ctx context.Context, conf *core.Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return New(client, time.Duration(conf.Session.MaxAge)*time.Second), nil
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (st *Store) Close() error {
	return st.client.Close()
}

func (st *Store) Storage(namespace string) core.Storage {
	return &storage{store: st, key: keyPrefix + namespace}
}

// wrap reports a closed client as a shutdown error: no session can be served anymore.
func wrap(err error, msg string) error {
	if errors.Is(err, redis.ErrClosed) {
		return errors.Wrap(core.NewShutdownError("session storage closed"), msg)
	}
	return errors.Wrap(err, msg)
}

func (s *storage) GetItem(ctx context.Context, key string) (string, error) {
	val, err := s.store.client.HGet(ctx, s.key, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrNotFound
		}
		return "", wrap(err, "redis HGET")
	}
	return val, nil
}

func (s *storage) SetItem(ctx context.Context, key, value string) error {
	_, err := s.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, key, value)
		if s.store.ttl > 0 {
			pipe.Expire(ctx, s.key, s.store.ttl)
		}
		return nil
	})
	return wrap(err, "redis HSET")
}

func (s *storage) RemoveItem(ctx context.Context, key string) error {
	if err := s.store.client.HDel(ctx, s.key, key).Err(); err != nil {
		return wrap(err, "redis HDEL")
	}
	return nil
}
