package cache

import (
	"context"
	"time"

	"github.com/questtime/server/cache/local"
	cacheredis "github.com/questtime/server/cache/redis"
)

const bridgeBuf = 256

// Cache defines the KV operations used for session keys and presence marks.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations. The realtime sync
// adapter rides on this: completion and timer events are published here and
// fanned out to connected clients, across nodes when Redis backs it.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig selects the backend: a set RedisAddr picks Redis, otherwise
// the in-process implementations serve single-node deployments and tests.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

func (cfg CacheConfig) redis() cacheredis.Config {
	return cacheredis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewCache returns the configured Cache backend.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		return cacheredis.NewCache(cfg.redis())
	}
	return local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
}

// NewPubSub returns the configured PubSub backend, bridged to the shared
// Message type.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(cfg.redis())
		if err != nil {
			return nil, err
		}
		return &redisBridge{ps: rps}, nil
	}
	buf := cfg.LocalPubSubBuf
	if buf <= 0 {
		buf = bridgeBuf
	}
	return &localBridge{ps: local.NewPubSub(buf)}, nil
}

// bridge copies a backend's subscription channel into a cache.Message
// channel, closing the output when the backend closes.
func bridge[T any](in <-chan T, convert func(T) *Message) <-chan *Message {
	out := make(chan *Message, bridgeBuf)
	go func() {
		defer close(out)
		for msg := range in {
			out <- convert(msg)
		}
	}()
	return out
}

type localBridge struct {
	ps *local.LocalPubSub
}

func (b *localBridge) Publish(ctx context.Context, channel, message string) error {
	return b.ps.Publish(ctx, channel, message)
}

func (b *localBridge) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := b.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := bridge(in, func(m *local.Message) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	})
	return out, cancel, nil
}

type redisBridge struct {
	ps *cacheredis.RedisPubSub
}

func (b *redisBridge) Publish(ctx context.Context, channel, message string) error {
	return b.ps.Publish(ctx, channel, message)
}

func (b *redisBridge) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := b.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := bridge(in, func(m *cacheredis.Message) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	})
	return out, cancel, nil
}
