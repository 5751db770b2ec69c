package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisQueue stores records as JSON in a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(ctx context.Context, redisURL, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Add(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode dead-letter record: %w", err)
	}
	return q.client.RPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) All(ctx context.Context) ([]Record, error) {
	values, err := q.client.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	records, _ := decodeRecords(ctx, values)
	return records, nil
}

func (q *RedisQueue) Clear(ctx context.Context) error {
	return q.client.Del(ctx, q.key).Err()
}

// Drain reads the list under WATCH and trims what it read inside MULTI/EXEC.
// Entries that fail to decode are pushed back onto the list.
func (q *RedisQueue) Drain(ctx context.Context) ([]Record, error) {
	var records []Record

	err := q.client.Watch(ctx, func(tx *redis.Tx) error {
		values, err := tx.LRange(ctx, q.key, 0, -1).Result()
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}

		var malformed []any
		records, malformed = decodeRecords(ctx, values)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LTrim(ctx, q.key, int64(len(values)), -1)
			if len(malformed) > 0 {
				pipe.RPush(ctx, q.key, malformed...)
			}
			return nil
		})
		return err
	}, q.key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("dead-letter list changed during drain: %w", err)
	}
	if err != nil {
		return nil, err
	}

	return records, nil
}

// decodeRecords returns the entries that decode and the raw entries that do not.
func decodeRecords(ctx context.Context, values []string) ([]Record, []any) {
	records := make([]Record, 0, len(values))
	var malformed []any
	for i, value := range values {
		var record Record
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			skipMalformed(ctx, "redis", "index "+strconv.Itoa(i), err)
			malformed = append(malformed, value)
			continue
		}
		records = append(records, record)
	}
	return records, malformed
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
