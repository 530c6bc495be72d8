package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/cache"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

// Cached is a cache-aside decorator for user carts. Every Replace attempt
// invalidates the entry whatever its outcome. A failed invalidation is logged
// and the entry ages out after ttl.
type Cached struct {
	next  Persister
	cache *redis.Client
	ttl   time.Duration
}

func NewCached(next Persister, cache *redis.Client, ttl time.Duration) Cached {
	return Cached{next: next, cache: cache, ttl: ttl}
}

func cartCacheKey(owner model.Owner) string {
	return fmt.Sprintf(cache.KEY_CARTS, owner.UserID.String())
}

func (cp Cached) Load(c context.Context, owner model.Owner) (Loaded, error) {
	c, span := cartOtel.Tracer.Start(c, "persistence.Cached Load")
	defer span.End()

	cacheKey := cartCacheKey(owner)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "persistence.Cached Load").
		Stringer(constants.KEY_OWNER, owner).
		Str(constants.KEY_CACHE_KEY, cacheKey).
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "finding cart in cache").Logger()
	logger.Debug().Msg("finding cart in cache")
	raw, err := cp.cache.Get(c, cacheKey).Bytes()
	switch {
	case err == nil:
		loaded := Loaded{}
		if err = json.Unmarshal(raw, &loaded); err == nil {
			logger.Debug().Msg("found cart in cache")
			return loaded, nil
		}
		err = fmt.Errorf("failed decoding cached cart with error=%w", err)
		logger.Warn().Err(err).Msg(err.Error())
	case errors.Is(err, redis.Nil):
		logger.Debug().Msg("cart not in cache")
	default:
		err = fmt.Errorf("failed finding cart in cache with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
	}

	loaded, err := cp.next.Load(logger.WithContext(c), owner)
	if err != nil {
		return Loaded{}, err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "inserting cart to cache").Logger()
	logger.Debug().Msg("inserting cart to cache")
	encoded, err := json.Marshal(loaded)
	if err != nil {
		err = fmt.Errorf("failed encoding cart with error=%w", err)
		logger.Warn().Err(err).Msg(err.Error())
		return loaded, nil
	}
	if err = cp.cache.Set(c, cacheKey, encoded, cp.ttl).Err(); err != nil {
		err = fmt.Errorf("failed inserting cart to cache with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return loaded, nil
	}
	logger.Debug().Msg("inserted cart to cache")
	return loaded, nil
}

func (cp Cached) Replace(c context.Context, owner model.Owner, lines []model.Payload, version uint64) error {
	c, span := cartOtel.Tracer.Start(c, "persistence.Cached Replace")
	defer span.End()

	cacheKey := cartCacheKey(owner)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "persistence.Cached Replace").
		Stringer(constants.KEY_OWNER, owner).
		Str(constants.KEY_CACHE_KEY, cacheKey).
		Logger()

	err := cp.next.Replace(logger.WithContext(c), owner, lines, version)

	logger = logger.With().Str(constants.KEY_PROCESS, "invalidating cart in cache").Logger()
	logger.Debug().Msg("invalidating cart in cache")
	if delErr := cp.cache.Del(c, cacheKey).Err(); delErr != nil {
		delErr = fmt.Errorf("failed invalidating cart in cache with error=%w", delErr)
		otel.RecordError(delErr, span)
		logger.Error().Err(delErr).Msg(delErr.Error())
		return err
	}
	logger.Debug().Msg("invalidated cart in cache")
	return err
}
