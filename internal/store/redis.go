package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	orderKeyPrefix   = "order:"
	invoiceKeyPrefix = "invoice:"
)

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store on Redis so several instances share one cache.
// Orders are JSON values under order:<id>; invoice:<id> holds the order id.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Order, error) {
	data, err := s.rdb.Get(ctx, orderKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		orderID, aliasErr := s.rdb.Get(ctx, invoiceKeyPrefix+id).Result()
		if errors.Is(aliasErr, redis.Nil) {
			return nil, ErrNotFound
		}
		if aliasErr != nil {
			return nil, aliasErr
		}
		data, err = s.rdb.Get(ctx, orderKeyPrefix+orderID).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", id, err)
	}
	return &o, nil
}

func (s *RedisStore) Set(ctx context.Context, o *Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode order %s: %w", o.OrderID, err)
	}

	// Re-keying an order to a new invoice drops the old alias.
	var staleInvoice string
	prevData, err := s.rdb.Get(ctx, orderKeyPrefix+o.OrderID).Bytes()
	switch {
	case err == nil:
		var prev Order
		if json.Unmarshal(prevData, &prev) == nil && prev.InvoiceID != "" && prev.InvoiceID != o.InvoiceID {
			staleInvoice = prev.InvoiceID
		}
	case !errors.Is(err, redis.Nil):
		return err
	}

	pipe := s.rdb.TxPipeline()
	if staleInvoice != "" {
		pipe.Del(ctx, invoiceKeyPrefix+staleInvoice)
	}
	pipe.Set(ctx, orderKeyPrefix+o.OrderID, data, 0)
	if o.InvoiceID != "" {
		pipe.Set(ctx, invoiceKeyPrefix+o.InvoiceID, o.OrderID, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, orderID string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	keys := []string{orderKeyPrefix + o.OrderID}
	if o.InvoiceID != "" {
		keys = append(keys, invoiceKeyPrefix+o.InvoiceID)
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
