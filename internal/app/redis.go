package app

import (
	"context"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/cache"
	"analysis-engine/internal/redis"
)

// lookupCachePrefix namespaces lookup results in a shared redis
const lookupCachePrefix = "analysis:lookup:"

// initializeRedis builds the lookup cache. Without REDIS_ADDRESS, or when
// redis cannot be reached, lookups are cached in process only.
func (app *App) initializeRedis(ctx context.Context) error {
	logger := app.Environment.Logger.WithFields(logging.String("component", "cache"))

	if app.Config.RedisAddress == "" {
		app.Logger.Info("Redis: Not configured (lookup cache is in process only)")
		app.Cache = cache.NewInMemoryCache(app.Config.LookupCacheTTL)
		app.Environment.Cache = app.Cache
		return nil
	}

	client, err := redis.NewClient(ctx, &redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
	})
	if err != nil {
		app.Logger.Warn("Redis initialization failed, continuing with an in process cache", logging.Err(err))
		app.Cache = cache.NewInMemoryCache(app.Config.LookupCacheTTL)
		app.Environment.Cache = app.Cache
		return nil
	}

	app.RedisClient = client
	app.Cache = cache.NewTieredCache(client, lookupCachePrefix, app.Config.LookupCacheTTL, logger)
	app.Environment.Cache = app.Cache
	app.Logger.Info("Redis: Connected", logging.String("address", app.Config.RedisAddress))
	return nil
}
