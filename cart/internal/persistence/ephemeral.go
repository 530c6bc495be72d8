package persistence

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

// Ephemeral persists anonymous carts in a LocalStorage. Writes are not version
// checked: the last completed write wins.
type Ephemeral struct {
	storage LocalStorage
}

func NewEphemeral(storage LocalStorage) Ephemeral {
	return Ephemeral{storage: storage}
}

// StorageKey derives the storage key from a session token so raw tokens never
// reach the storage medium.
func StorageKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func checkAnonymous(op cartErrors.Op, owner model.Owner) error {
	if !owner.IsAnonymous() {
		return &cartErrors.PersistenceError{Op: op, Owner: owner, Err: cartErrors.ErrWrongOwner}
	}
	if err := owner.Validate(); err != nil {
		return &cartErrors.PersistenceError{Op: op, Owner: owner, Err: err}
	}
	return nil
}

// Load never fails on unreadable data: it logs and returns an empty cart.
func (e Ephemeral) Load(c context.Context, owner model.Owner) (Loaded, error) {
	c, span := cartOtel.Tracer.Start(c, "Ephemeral Load")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Ephemeral Load").
		Stringer(constants.KEY_OWNER, owner).
		Logger()

	if err := checkAnonymous(cartErrors.OpLoad, owner); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Loaded{}, err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "reading anonymous cart").Logger()
	logger.Debug().Msg("reading anonymous cart")
	raw, err := e.storage.Get(c, StorageKey(owner.Token))
	if err != nil {
		err = fmt.Errorf("failed reading anonymous cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg("degrading to empty anonymous cart")
		return Loaded{}, nil
	}
	if len(raw) == 0 {
		logger.Debug().Msg("anonymous cart not found")
		return Loaded{}, nil
	}

	loaded := Loaded{}
	if err = json.Unmarshal(raw, &loaded); err != nil {
		err = fmt.Errorf("failed decoding anonymous cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg("degrading to empty anonymous cart")
		return Loaded{}, nil
	}
	logger.Debug().Int(constants.KEY_CART_LINES, len(loaded.Lines)).Msg("read anonymous cart")
	return loaded, nil
}

func (e Ephemeral) Replace(c context.Context, owner model.Owner, lines []model.Payload, version uint64) error {
	c, span := cartOtel.Tracer.Start(c, "Ephemeral Replace")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Ephemeral Replace").
		Stringer(constants.KEY_OWNER, owner).
		Uint64(constants.KEY_CART_VERSION, version).
		Int(constants.KEY_CART_LINES, len(lines)).
		Logger()

	if err := checkAnonymous(cartErrors.OpReplace, owner); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "writing anonymous cart").Logger()
	logger.Debug().Msg("writing anonymous cart")
	if lines == nil {
		lines = []model.Payload{}
	}
	encoded, err := json.Marshal(Loaded{Lines: lines, Version: version})
	if err != nil {
		err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if err = e.storage.Set(c, StorageKey(owner.Token), encoded); err != nil {
		err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Debug().Msg("wrote anonymous cart")
	return nil
}

func (e Ephemeral) Clear(c context.Context, owner model.Owner) error {
	c, span := cartOtel.Tracer.Start(c, "Ephemeral Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Ephemeral Clear").
		Stringer(constants.KEY_OWNER, owner).
		Str(constants.KEY_PROCESS, "clearing anonymous cart").
		Logger()

	if err := checkAnonymous(cartErrors.OpClear, owner); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger.Debug().Msg("clearing anonymous cart")
	if err := e.storage.Del(c, StorageKey(owner.Token)); err != nil {
		err = &cartErrors.PersistenceError{Op: cartErrors.OpClear, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Debug().Msg("cleared anonymous cart")
	return nil
}
