package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps balances in a single Redis hash. Save runs DEL and HSET in one
// MULTI/EXEC block so readers never see a half-written hash.
type RedisStore struct {
	client    redis.UniversalClient
	key       string
	closeOnce sync.Once
	closeErr  error
}

// OpenRedisStore parses the URL and pings the server.
func OpenRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, unavailable("parse redis url", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, unavailable("ping redis", err)
	}
	return NewRedisStore(client, key), nil
}

// NewRedisStore wraps an existing client. The store owns the client from now on.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "economy:balances"
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, unavailable("hgetall", err)
	}
	balances, err := decodeRedisBalances(raw)
	if err != nil {
		return nil, err
	}
	if err := validateBalances(balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *RedisStore) Save(ctx context.Context, balances map[string]int64) error {
	if err := validateBalances(balances); err != nil {
		return err
	}
	fields := encodeRedisBalances(balances)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return unavailable("write balances", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

func encodeRedisBalances(balances map[string]int64) map[string]interface{} {
	fields := make(map[string]interface{}, len(balances))
	for id, balance := range balances {
		fields[id] = strconv.FormatInt(balance, 10)
	}
	return fields
}

func decodeRedisBalances(raw map[string]string) (map[string]int64, error) {
	balances := make(map[string]int64, len(raw))
	for id, value := range raw {
		balance, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, unavailable("decode balance", fmt.Errorf("account %s: %w", id, err))
		}
		balances[id] = balance
	}
	return balances, nil
}
