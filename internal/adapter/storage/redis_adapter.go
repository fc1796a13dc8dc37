package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	seatsKeyPrefix    = "seats:"
	seatsGenKeyPrefix = "seats-gen:"
)

// RedisAdapter caches seats_left per activity for the availability endpoint.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) GetSeats(ctx context.Context, activityID string) (int, bool, error) {
	seats, err := r.client.Get(ctx, seatsKeyPrefix+activityID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return seats, true, nil
}

func (r *RedisAdapter) Version(ctx context.Context, activityID string) (int64, error) {
	gen, err := r.client.Get(ctx, seatsGenKeyPrefix+activityID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetSeats writes under WATCH on the generation key, so an Invalidate racing the
// write aborts it.
func (r *RedisAdapter) SetSeats(ctx context.Context, activityID string, seats int, version int64) error {
	genKey := seatsGenKeyPrefix + activityID

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		gen, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if gen != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, seatsKeyPrefix+activityID, seats, r.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (r *RedisAdapter) Invalidate(ctx context.Context, activityID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, seatsGenKeyPrefix+activityID)
		pipe.Del(ctx, seatsKeyPrefix+activityID)
		return nil
	})
	return err
}
