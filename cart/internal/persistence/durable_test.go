package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/cart/internal/cache"
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	"github.com/Alturino/storefront/internal/repository"
)

func TestDurable(t *testing.T) {
	c := context.Background()
	cs := setup(t, c)
	durable := NewDurable(cs.pool, repository.New(cs.pool))

	t.Run("given unknown user should load empty cart", func(t *testing.T) {
		loaded, err := durable.Load(c, model.User(uuid.New()))
		require.NoError(t, err)
		assert.Empty(t, loaded.Lines)
		assert.Zero(t, loaded.Version)
	})

	t.Run("given replace should fully replace lines", func(t *testing.T) {
		owner := model.User(uuid.New())
		combo := model.Payload{
			ComboID:   uuid.NullUUID{UUID: uuid.New(), Valid: true},
			Quantity:  1,
			UnitPrice: decimal.NewFromInt(1200),
			Name:      "Breakfast bundle",
		}
		require.NoError(t, durable.Replace(c, owner, []model.Payload{payload(2), combo}, 1))

		first := payload(5)
		require.NoError(t, durable.Replace(c, owner, []model.Payload{first}, 2))

		loaded, err := durable.Load(c, owner)
		require.NoError(t, err)
		assert.EqualValues(t, 2, loaded.Version)
		require.Len(t, loaded.Lines, 1)
		assert.Equal(t, first.Key(), loaded.Lines[0].Key())
		assert.EqualValues(t, 5, loaded.Lines[0].Quantity)
		assert.Equal(t, "250", loaded.Lines[0].UnitPrice.String())
	})

	t.Run("given combo line should keep nil product id", func(t *testing.T) {
		owner := model.User(uuid.New())
		comboID := uuid.New()
		combo := model.Payload{ComboID: uuid.NullUUID{UUID: comboID, Valid: true}, Quantity: 1, UnitPrice: decimal.NewFromInt(1200)}
		require.NoError(t, durable.Replace(c, owner, []model.Payload{combo}, 1))

		loaded, err := durable.Load(c, owner)
		require.NoError(t, err)
		require.Len(t, loaded.Lines, 1)
		assert.False(t, loaded.Lines[0].ProductID.Valid)
		assert.Equal(t, model.Key{ComboID: comboID}, loaded.Lines[0].Key())
	})

	t.Run("given stale version should be superseded and keep newer lines", func(t *testing.T) {
		owner := model.User(uuid.New())
		newer := payload(1)
		require.NoError(t, durable.Replace(c, owner, []model.Payload{newer}, 5))

		err := durable.Replace(c, owner, []model.Payload{payload(9)}, 4)
		assert.ErrorIs(t, err, cartErrors.ErrSuperseded)

		loaded, err := durable.Load(c, owner)
		require.NoError(t, err)
		require.Len(t, loaded.Lines, 1)
		assert.Equal(t, newer.Key(), loaded.Lines[0].Key())
	})

	t.Run("given later issued write completing first should keep it", func(t *testing.T) {
		owner := model.User(uuid.New())
		issuedFirst, issuedLast := payload(1), payload(2)

		require.NoError(t, durable.Replace(c, owner, []model.Payload{issuedLast}, 2))
		err := durable.Replace(c, owner, []model.Payload{issuedFirst}, 1)
		assert.ErrorIs(t, err, cartErrors.ErrSuperseded)

		loaded, err := durable.Load(c, owner)
		require.NoError(t, err)
		require.Len(t, loaded.Lines, 1)
		assert.Equal(t, issuedLast.Key(), loaded.Lines[0].Key())
	})

	t.Run("given anonymous owner should reject", func(t *testing.T) {
		err := durable.Replace(c, model.Anonymous("token"), nil, 1)
		assert.ErrorIs(t, err, cartErrors.ErrWrongOwner)
	})

	t.Run("given cached decorator should serve from cache and invalidate on replace", func(t *testing.T) {
		owner := model.User(uuid.New())
		cached := NewCached(durable, cs.redis, time.Minute)
		require.NoError(t, cached.Replace(c, owner, []model.Payload{payload(1)}, 1))

		loaded, err := cached.Load(c, owner)
		require.NoError(t, err)
		require.Len(t, loaded.Lines, 1)

		cacheKey := fmt.Sprintf(cache.KEY_CARTS, owner.UserID.String())
		exists, err := cs.redis.Exists(c, cacheKey).Result()
		require.NoError(t, err)
		assert.EqualValues(t, 1, exists)

		require.NoError(t, cached.Replace(c, owner, []model.Payload{payload(1), payload(3)}, 2))
		exists, err = cs.redis.Exists(c, cacheKey).Result()
		require.NoError(t, err)
		assert.Zero(t, exists)

		loaded, err = cached.Load(c, owner)
		require.NoError(t, err)
		assert.Len(t, loaded.Lines, 2)
		assert.EqualValues(t, 2, loaded.Version)
	})

	t.Run("given redis storage should round trip anonymous cart with ttl", func(t *testing.T) {
		owner := model.Anonymous(uuid.NewString())
		ephemeral := NewEphemeral(NewRedisStorage(cs.redis, time.Hour))
		require.NoError(t, ephemeral.Replace(c, owner, []model.Payload{payload(4)}, 1))

		loaded, err := ephemeral.Load(c, owner)
		require.NoError(t, err)
		require.Len(t, loaded.Lines, 1)

		ttl, err := cs.redis.TTL(c, fmt.Sprintf(cache.KEY_ANONYMOUS, StorageKey(owner.Token))).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))

		require.NoError(t, ephemeral.Clear(c, owner))
		loaded, err = ephemeral.Load(c, owner)
		require.NoError(t, err)
		assert.Empty(t, loaded.Lines)
	})
}
