package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "pollhub:audit"

// RedisSink appends events to a capped Redis list shared by every instance.
type RedisSink struct {
	client redis.UniversalClient
	key    string
	max    int64
}

// NewRedisSink stores at most maxLen events under key (default "pollhub:audit").
func NewRedisSink(client redis.UniversalClient, key string, maxLen int64) (*RedisSink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if maxLen <= 0 {
		return nil, errors.New("max length must be positive")
	}
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisSink{client: client, key: key, max: maxLen}, nil
}

func (s *RedisSink) Record(ctx context.Context, e Event) error {
	e, err := Normalize(ctx, e)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, s.max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis audit write: %w", err)
	}
	return nil
}

// Recent returns up to limit events newest first.
func (s *RedisSink) Recent(ctx context.Context, limit int64) ([]Event, error) {
	if limit <= 0 || limit > s.max {
		limit = s.max
	}
	raw, err := s.client.LRange(ctx, s.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis audit read: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Query scans the capped list newest first and returns the events matching f.
func (s *RedisSink) Query(ctx context.Context, f Filter) ([]Event, error) {
	all, err := s.Recent(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(all))
	for _, e := range all {
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
