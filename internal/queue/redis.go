package queue

import (
	"strings"

	"github.com/hibiken/asynq"

	"recipe-vault-backend/internal/config"
)

// RedisConnOpt builds the asynq Redis connection from config, which may
// hold a full URL (managed providers) or a plain host:port.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		return asynq.ParseRedisURI(cfg.RedisURL)
	}

	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
