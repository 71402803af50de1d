package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/bulkflow/internal/platform/logger"
)

const maxWatchAttempts = 16

// RedisStore keeps each bulk transaction in one redis hash.
type RedisStore struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	owned  bool
	ready  atomic.Bool
}

type RedisOption func(*RedisStore)

// WithOwnedClient makes Close close the redis client as well.
func WithOwnedClient() RedisOption {
	return func(s *RedisStore) { s.owned = true }
}

func NewRedisStore(log *logger.Logger, rdb goredis.UniversalClient, keyPrefix string, opts ...RedisOption) (*RedisStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	s := &RedisStore{
		log:    log.With("service", "RedisStateStore"),
		rdb:    rdb,
		prefix: strings.TrimSpace(keyPrefix),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) key(id string) string { return s.prefix + RecordKeyPrefix + id }

func (s *RedisStore) Init(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.ready.Store(false)
		return fmt.Errorf("statestore redis ping: %w", err)
	}
	s.ready.Store(true)
	s.log.Info("state store ready", "prefix", s.prefix)
	return nil
}

func (s *RedisStore) CanCall() bool { return s != nil && s.ready.Load() }

func (s *RedisStore) Load(ctx context.Context, id string, out any) error {
	const op = "statestore.Load"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	raw, err := s.rdb.HGet(ctx, s.key(id), RootField).Bytes()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return decode(op, raw, out)
}

func (s *RedisStore) Store(ctx context.Context, id string, root any) error {
	const op = "statestore.Store"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	raw, err := encode(op, root)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, s.key(id), RootField, raw).Err(); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

func (s *RedisStore) GetAttribute(ctx context.Context, id, key string, out any) error {
	const op = "statestore.GetAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	raw, err := s.rdb.HGet(ctx, s.key(id), key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%s %s/%s: %w", op, id, key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, id, key, err)
	}
	return decode(op, raw, out)
}

func (s *RedisStore) SetAttribute(ctx context.Context, id, key string, value any) error {
	const op = "statestore.SetAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	raw, err := encode(op, value)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, s.key(id), key, raw).Err(); err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, id, key, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	const op = "statestore.Update"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	return s.update(ctx, op, id, RootField, fn)
}

func (s *RedisStore) UpdateAttribute(ctx context.Context, id, key string, fn UpdateFunc) error {
	const op = "statestore.UpdateAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	return s.update(ctx, op, id, key, fn)
}

// update is an optimistic WATCH/MULTI round on the record hash. A write to
// any slot of the same record aborts the round and fn runs again.
func (s *RedisStore) update(ctx context.Context, op, id, field string, fn UpdateFunc) error {
	key := s.key(id)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.HGet(ctx, key, field).Bytes()
		if errors.Is(err, goredis.Nil) {
			raw, err = nil, nil
		}
		if err != nil {
			return err
		}
		next, err := fn(Slot{raw: raw})
		if err != nil || next == nil {
			return err
		}
		out, err := encode(op, next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, field, out)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s %s/%s: %w", op, id, field, err)
		}
		return nil
	}
	s.log.Warn("update kept conflicting", "id", id, "field", field, "attempts", maxWatchAttempts)
	return fmt.Errorf("%s %s/%s: %w", op, id, field, ErrConflict)
}

func (s *RedisStore) GetAllAttributeKeys(ctx context.Context, id string) ([]string, error) {
	const op = "statestore.GetAllAttributeKeys"
	if !s.CanCall() {
		return nil, ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return nil, err
	}
	keys, err := s.rdb.HKeys(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}
	out := keys[:0]
	for _, k := range keys {
		if k != RootField {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	const op = "statestore.Remove"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

// ListIDs walks the keyspace with SCAN so large deployments are never blocked.
func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	const op = "statestore.ListIDs"
	if !s.CanCall() {
		return nil, ErrRepositoryUnavailable
	}
	pattern := s.prefix + RecordKeyPrefix + "*"
	var ids []string
	iter := s.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix+RecordKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (s *RedisStore) Close() error {
	if s == nil {
		return nil
	}
	s.ready.Store(false)
	if s.owned {
		return s.rdb.Close()
	}
	return nil
}
