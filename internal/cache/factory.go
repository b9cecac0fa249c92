package cache

import (
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend string // "file", "memory" or "redis"
	Path    string // file backend only
	Prefix  string // redis backend only
	Lenient bool   // file backend: treat a corrupt file as empty
}

func NewStore(cfg Config, redisClient *redis.Client) Store {
	switch cfg.Backend {
	case "redis":
		return NewRedisStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	case "memory":
		return NewMemoryStore()
	default:
		var opts []FileStoreOption
		if cfg.Lenient {
			opts = append(opts, WithLenientLoad())
		}
		return NewFileStore(cfg.Path, opts...)
	}
}
