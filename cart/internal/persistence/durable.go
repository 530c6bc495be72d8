package persistence

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
)

// Durable persists user carts in PostgreSQL. Replace is a full replace guarded
// by the carts.version column: only strictly newer versions are written.
type Durable struct {
	pool    *pgxpool.Pool
	queries *repository.Queries
}

func NewDurable(pool *pgxpool.Pool, queries *repository.Queries) Durable {
	return Durable{pool: pool, queries: queries}
}

func checkUser(op cartErrors.Op, owner model.Owner) error {
	if !owner.IsUser() {
		return &cartErrors.PersistenceError{Op: op, Owner: owner, Err: cartErrors.ErrWrongOwner}
	}
	if err := owner.Validate(); err != nil {
		return &cartErrors.PersistenceError{Op: op, Owner: owner, Err: err}
	}
	return nil
}

func (d Durable) Load(c context.Context, owner model.Owner) (Loaded, error) {
	c, span := cartOtel.Tracer.Start(c, "Durable Load")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Durable Load").
		Stringer(constants.KEY_OWNER, owner).
		Logger()

	if err := checkUser(cartErrors.OpLoad, owner); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Loaded{}, err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "finding cart by user id").Logger()
	logger.Info().Msg("finding cart by user id")
	cart, err := d.queries.FindCartByUserId(c, owner.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Info().Msg("cart not found, starting empty")
			return Loaded{Lines: []model.Payload{}}, nil
		}
		err = &cartErrors.PersistenceError{Op: cartErrors.OpLoad, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Loaded{}, err
	}
	logger = logger.With().Int64(constants.KEY_CART_VERSION, cart.Version).Logger()
	logger.Info().Msg("found cart by user id")

	logger = logger.With().Str(constants.KEY_PROCESS, "finding cart items").Logger()
	logger.Info().Msg("finding cart items")
	items, err := d.queries.FindCartItemsByCartId(c, cart.ID)
	if err != nil {
		err = &cartErrors.PersistenceError{Op: cartErrors.OpLoad, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Loaded{}, err
	}
	logger.Info().Int(constants.KEY_CART_LINES, len(items)).Msg("found cart items")

	lines := make([]model.Payload, len(items))
	for i, item := range items {
		lines[i] = model.Payload{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			ComboID:   item.ComboID,
			Quantity:  item.Quantity,
			UnitPrice: repository.DecimalFromNumeric(item.UnitPrice).Decimal,
			Name:      item.Name,
			Image:     item.Image,
		}
	}
	return Loaded{Lines: lines, Version: uint64(cart.Version)}, nil
}

func (d Durable) Replace(c context.Context, owner model.Owner, lines []model.Payload, version uint64) error {
	c, span := cartOtel.Tracer.Start(c, "Durable Replace")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Durable Replace").
		Stringer(constants.KEY_OWNER, owner).
		Uint64(constants.KEY_CART_VERSION, version).
		Int(constants.KEY_CART_LINES, len(lines)).
		Logger()

	if err := checkUser(cartErrors.OpReplace, owner); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if version == 0 || version > math.MaxInt64 {
		err := &cartErrors.PersistenceError{
			Op:    cartErrors.OpReplace,
			Owner: owner,
			Err:   fmt.Errorf("version=%d out of range", version),
		}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing transaction").Logger()
	logger.Info().Msg("initializing transaction")
	tx, err := d.pool.BeginTx(c, pgx.TxOptions{})
	if err != nil {
		err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("initialized transaction")
	defer func(lg zerolog.Logger) {
		l := lg.With().Str(constants.KEY_PROCESS, "rolling back transaction").Logger()
		rbErr := tx.Rollback(c)
		if rbErr != nil {
			if errors.Is(rbErr, pgx.ErrTxClosed) {
				return
			}
			rbErr = fmt.Errorf("failed rolling back transaction with error=%w", rbErr)
			otel.RecordError(rbErr, span)
			l.Error().Err(rbErr).Msg(rbErr.Error())
			return
		}
		l.Info().Msg("rolled back transaction")
	}(logger)
	queries := d.queries.WithTx(tx)

	logger = logger.With().Str(constants.KEY_PROCESS, "bumping cart version").Logger()
	logger.Info().Msg("bumping cart version")
	cart, err := queries.UpsertCartVersion(
		c,
		repository.UpsertCartVersionParams{UserID: owner.UserID, Version: int64(version)},
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: cartErrors.ErrSuperseded}
			logger.Info().Err(err).Msg("stored cart is newer, skipping write")
			return err
		}
		err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("bumped cart version")

	logger = logger.With().Str(constants.KEY_PROCESS, "deleting cart items").Logger()
	logger.Info().Msg("deleting cart items")
	deleted, err := queries.DeleteCartItemsByCartId(c, cart.ID)
	if err != nil {
		err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msgf("deleted %d cart items", deleted)

	if len(lines) > 0 {
		logger = logger.With().Str(constants.KEY_PROCESS, "inserting cart items").Logger()
		logger.Info().Msg("inserting cart items")
		args := make([]repository.InsertCartItemsParams, len(lines))
		for i, l := range lines {
			args[i] = repository.InsertCartItemsParams{
				ID:        uuid.New(),
				CartID:    cart.ID,
				ProductID: l.ProductID,
				VariantID: l.VariantID,
				ComboID:   l.ComboID,
				Quantity:  l.Quantity,
				UnitPrice: repository.NumericFromDecimal(l.UnitPrice),
				Name:      l.Name,
				Image:     l.Image,
				Position:  int32(i),
			}
		}
		inserted, err := queries.InsertCartItems(c, args)
		if err != nil {
			err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: err}
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		logger.Info().Msgf("inserted %d cart items", inserted)
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "committing transaction").Logger()
	logger.Info().Msg("committing transaction")
	if err = tx.Commit(c); err != nil {
		err = &cartErrors.PersistenceError{Op: cartErrors.OpReplace, Owner: owner, Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("committed transaction")
	return nil
}
