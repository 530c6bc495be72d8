// Package broadcast relays "cart changed" signals between sessions of the same
// owner over Redis pub/sub, so a write in one tab reloads the others.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/cache"
	"github.com/Alturino/storefront/cart/internal/metric"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/persistence"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

const (
	DirectionPublished = "published"
	DirectionReceived  = "received"
	DirectionDropped   = "dropped"
)

// Message is published after a cart write landed. Origin is the id of the
// session that wrote, so it can ignore its own echo.
type Message struct {
	Origin  uuid.UUID `json:"origin"`
	Version uint64    `json:"version"`
}

type Publisher interface {
	Publish(c context.Context, owner model.Owner, msg Message) error
}

// Handler receives every relayed message on the relay goroutine. Notify must
// return quickly; slow work belongs in its own goroutine.
type Handler interface {
	Notify(c context.Context, channel string, msg Message)
}

// Channel names the pub/sub channel of an owner. Anonymous tokens never
// appear in channel names, only their storage digest.
func Channel(owner model.Owner) string {
	if owner.IsUser() {
		return fmt.Sprintf(cache.CHANNEL_CHANGED_USER, owner.UserID.String())
	}
	return fmt.Sprintf(cache.CHANNEL_CHANGED_ANONYMOUS, persistence.StorageKey(owner.Token))
}

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) Redis {
	return Redis{client: client}
}

func (r Redis) Publish(c context.Context, owner model.Owner, msg Message) error {
	c, span := cartOtel.Tracer.Start(c, "broadcast Publish")
	defer span.End()

	channel := Channel(owner)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "broadcast Publish").
		Str(constants.KEY_PROCESS, "publishing cart change").
		Str("channel", channel).
		Uint64(constants.KEY_CART_VERSION, msg.Version).
		Logger()

	payload, err := json.Marshal(msg)
	if err != nil {
		err = fmt.Errorf("failed marshaling broadcast message with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger.Trace().Msg("publishing cart change")
	if err := r.client.Publish(c, channel, payload).Err(); err != nil {
		err = fmt.Errorf("failed publishing cart change with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	metric.Broadcasts.WithLabelValues(DirectionPublished).Inc()
	logger.Trace().Msg("published cart change")
	return nil
}

// Relay listens on every cart channel and hands decoded messages to handler.
type Relay struct {
	client  *redis.Client
	handler Handler
}

func NewRelay(client *redis.Client, handler Handler) Relay {
	return Relay{client: client, handler: handler}
}

// Start blocks until c is done.
func (r Relay) Start(c context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Relay Start").
		Str(constants.KEY_PROCESS, "relaying cart changes").
		Str("pattern", cache.CHANNEL_CHANGED_PATTERN).
		Logger()

	pubsub := r.client.PSubscribe(c, cache.CHANNEL_CHANGED_PATTERN)
	defer func() {
		if err := pubsub.Close(); err != nil {
			err = fmt.Errorf("failed closing cart change subscription with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()
	logger.Info().Msg("subscribed to cart changes")

	ch := pubsub.Channel()
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("stopped relaying cart changes")
			return
		case m, ok := <-ch:
			if !ok {
				logger.Warn().Msg("cart change subscription closed")
				return
			}
			r.dispatch(logger.WithContext(c), m)
		}
	}
}

func (r Relay) dispatch(c context.Context, m *redis.Message) {
	logger := zerolog.Ctx(c).With().Str("channel", m.Channel).Logger()

	if !strings.HasPrefix(m.Channel, strings.TrimSuffix(cache.CHANNEL_CHANGED_PATTERN, "*")) {
		metric.Broadcasts.WithLabelValues(DirectionDropped).Inc()
		return
	}
	msg := Message{}
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		err = fmt.Errorf("failed unmarshaling broadcast message with error=%w", err)
		metric.Broadcasts.WithLabelValues(DirectionDropped).Inc()
		logger.Warn().Err(err).Msg(err.Error())
		return
	}
	metric.Broadcasts.WithLabelValues(DirectionReceived).Inc()
	r.handler.Notify(logger.WithContext(c), m.Channel, msg)
}
