package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisClient is the part of *redis.Client the sink uses.
type redisClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

type RedisOptions struct {
	Stream string
	// MaxLen trims the stream approximately; 0 keeps everything.
	MaxLen        int64
	ChannelPrefix string
}

// RedisSink appends each record to a stream and publishes it on
// ChannelPrefix+type.
type RedisSink struct {
	client redisClient
	opts   RedisOptions
}

func NewRedisSink(redisURL string, opts RedisOptions) (*RedisSink, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newRedisSink(redis.NewClient(opt), opts), nil
}

func newRedisSink(client redisClient, opts RedisOptions) *RedisSink {
	if opts.Stream == "" {
		opts.Stream = "socketmode:events"
	}
	if opts.ChannelPrefix == "" {
		opts.ChannelPrefix = "socketmode:evt:"
	}
	return &RedisSink{client: client, opts: opts}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	var errs []error
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.opts.Stream,
		MaxLen: s.opts.MaxLen,
		Approx: s.opts.MaxLen > 0,
		Values: map[string]any{
			"envelope_id": rec.EnvelopeID,
			"type":        rec.Type,
			"subtype":     rec.Subtype,
			"record":      string(b),
		},
	}).Err(); err != nil {
		errs = append(errs, fmt.Errorf("xadd %s: %w", s.opts.Stream, err))
	}

	channel := s.opts.ChannelPrefix + rec.Type
	if err := s.client.Publish(ctx, channel, b).Err(); err != nil {
		errs = append(errs, fmt.Errorf("publish %s: %w", channel, err))
	}
	return errors.Join(errs...)
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
