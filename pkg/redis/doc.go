// Package redis connects to Redis and provides a read-through document cache
// for repository clients.
//
// Connect retries the initial ping using Config. Storage is a thin key/value
// wrapper over go-redis, and Cache decorates any repository.Client so that Get
// is served from Redis when possible:
//
//	rdb, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // errors.Is(err, redis.ErrRedisNotReady)
//	}
//	cached := redis.NewCache(store, redis.NewStorage(rdb),
//	    redis.WithTTL(time.Minute),
//	    redis.WithKeyPrefix("notes:"),
//	)
//	notes := repository.New[Note](repository.Options{Client: cached, IndexName: "notes"})
//
// Writes made through the cache (Index, Update, Delete) invalidate the cached
// document; DeleteIndex and CreateIndex drop every cached document of the
// index. Writes made by other processes are visible once the TTL expires.
// Cache errors are logged and never fail a request.
//
// ConnectFromEnv reads REDIS_* variables and returns the Cache together with the
// underlying client so the caller can close it. Healthcheck fits readiness probes.
package redis
