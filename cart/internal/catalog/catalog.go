// Package catalog looks up products, variants and combos for the cart. Every
// source goes through the normalization boundary in normalize.go, so the cart
// core only ever sees canonical model types.
package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/pricing"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

type Catalog interface {
	Lookup(c context.Context, sel model.Selection) (model.CatalogEntry, error)
}

// Entity is the live, presentational view of a selection.
type Entity struct {
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DisplayName string          `json:"display_name"`
	Image       string          `json:"image"`
}

func ResolveEntity(c context.Context, cat Catalog, sel model.Selection) (Entity, error) {
	c, span := cartOtel.Tracer.Start(c, "catalog ResolveEntity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "catalog ResolveEntity").
		Str(constants.KEY_LINE_KEY, sel.Key().String()).
		Str(constants.KEY_PROCESS, "looking up catalog entry").
		Logger()

	logger.Debug().Msg("looking up catalog entry")
	entry, err := cat.Lookup(logger.WithContext(c), sel)
	if err != nil {
		err = fmt.Errorf("failed resolving catalog entity with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Entity{}, err
	}
	logger.Debug().Msg("looked up catalog entry")

	snapshot := pricing.Describe(sel, entry)
	return Entity{UnitPrice: snapshot.UnitPrice, DisplayName: snapshot.Name, Image: snapshot.Image}, nil
}

// Func adapts a function into a Catalog.
type Func func(c context.Context, sel model.Selection) (model.CatalogEntry, error)

func (f Func) Lookup(c context.Context, sel model.Selection) (model.CatalogEntry, error) {
	return f(c, sel)
}

// Static serves entries from memory. Missing keys return ErrEntryNotFound.
type Static map[model.Key]model.CatalogEntry

func (s Static) Lookup(_ context.Context, sel model.Selection) (model.CatalogEntry, error) {
	entry, ok := s[sel.Key()]
	if !ok {
		return model.CatalogEntry{}, fmt.Errorf("%w: key=%s", cartErrors.ErrEntryNotFound, sel.Key())
	}
	return entry, nil
}
