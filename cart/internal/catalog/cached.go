package catalog

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

// Cached is a cache-aside decorator over another Catalog. Cache failures are
// logged and fall through to the wrapped catalog.
type Cached struct {
	next  Catalog
	cache *redis.Client
	ttl   time.Duration
}

func NewCached(next Catalog, cache *redis.Client, ttl time.Duration) Cached {
	return Cached{next: next, cache: cache, ttl: ttl}
}

func (cc Cached) Lookup(c context.Context, sel model.Selection) (model.CatalogEntry, error) {
	c, span := cartOtel.Tracer.Start(c, "catalog.Cached Lookup")
	defer span.End()

	cacheKey := fmt.Sprintf(cache.KEY_CATALOG_ENTRY, sel.Key().String())
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "catalog.Cached Lookup").
		Str(constants.KEY_CACHE_KEY, cacheKey).
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "finding catalog entry in cache").Logger()
	logger.Debug().Msg("finding catalog entry in cache")
	cached, err := cc.cache.Get(c, cacheKey).Bytes()
	switch {
	case err == nil:
		entry := model.CatalogEntry{}
		if err = json.Unmarshal(cached, &entry); err == nil {
			logger.Debug().Msg("found catalog entry in cache")
			return entry, nil
		}
		err = fmt.Errorf("failed decoding cached catalog entry with error=%w", err)
		logger.Warn().Err(err).Msg(err.Error())
	case errors.Is(err, redis.Nil):
		logger.Debug().Msg("catalog entry not in cache")
	default:
		err = fmt.Errorf("failed finding catalog entry in cache with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "looking up catalog entry").Logger()
	entry, err := cc.next.Lookup(logger.WithContext(c), sel)
	if err != nil {
		return model.CatalogEntry{}, err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "inserting catalog entry to cache").Logger()
	logger.Debug().Msg("inserting catalog entry to cache")
	encoded, err := json.Marshal(entry)
	if err != nil {
		err = fmt.Errorf("failed encoding catalog entry with error=%w", err)
		logger.Warn().Err(err).Msg(err.Error())
		return entry, nil
	}
	if err = cc.cache.Set(c, cacheKey, encoded, cc.ttl).Err(); err != nil {
		err = fmt.Errorf("failed inserting catalog entry to cache with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return entry, nil
	}
	logger.Debug().Msg("inserted catalog entry to cache")
	return entry, nil
}
