package cache

import (
	"context"
	"fmt"
	"time"
)

// Entry holds everything derived from a file's content during
// materialization. It is keyed by a digest of that content.
type Entry struct {
	EncodedContent string `json:"encodedContent"`
	ContentType    string `json:"contentType"`
	HasDimensions  bool   `json:"hasDimensions"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Close() error
}

type Config struct {
	Type     string
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	// MaxEntries bounds the memory cache; zero uses DefaultMaxEntries.
	MaxEntries int
}

func NewCache(cfg Config) (Cache, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryCache(cfg.MaxEntries), nil
	case TypeRedis:
		c, err := NewRedisCache(cfg.Address, cfg.Password, cfg.DB, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
