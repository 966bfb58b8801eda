package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces the per-topic lists.
const KeyPrefix = "roomhub:topic:"

// RedisSink appends records to a capped list per topic.
type RedisSink struct {
	client    redis.UniversalClient
	retention int64
}

// NewRedisSink uses client, which the sink closes on Close.
func NewRedisSink(client redis.UniversalClient, retention int) *RedisSink {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisSink{client: client, retention: int64(retention)}
}

// RedisKey is the list key for topic.
func RedisKey(topic string) string {
	return KeyPrefix + topic
}

func (s *RedisSink) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	key := RedisKey(rec.Topic)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -s.retention, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", key, err)
	}
	return nil
}

// Load returns the stored records of topic, oldest first.
func (s *RedisSink) Load(ctx context.Context, topic string) ([]Record, error) {
	raw, err := s.client.LRange(ctx, RedisKey(topic), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read: %w", err)
	}

	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
