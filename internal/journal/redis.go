package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "execbot:events"

// Redis appends events to a capped Redis stream.
type Redis struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedis connects to url and verifies the connection.
func NewRedis(ctx context.Context, url, stream string, maxLen int64) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newRedisWithClient(client, stream, maxLen), nil
}

func newRedisWithClient(client *redis.Client, stream string, maxLen int64) *Redis {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Redis{client: client, stream: stream, maxLen: maxLen}
}

// Append adds an event to the stream.
func (j *Redis) Append(ctx context.Context, e Event) error {
	e = stamp(e)
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":  string(e.Kind),
			"event": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Recent returns up to n events, newest first. Event IDs are derived from
// the stream entry's millisecond timestamp.
func (j *Redis) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 100
	}

	msgs, err := j.client.XRevRangeN(ctx, j.stream, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["event"].(string)
		if !ok {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", m.ID, err)
		}
		if ms, _, found := strings.Cut(m.ID, "-"); found {
			e.ID, _ = strconv.ParseInt(ms, 10, 64)
		}
		events = append(events, e)
	}
	return events, nil
}

// Close closes the client.
func (j *Redis) Close() error {
	return j.client.Close()
}
