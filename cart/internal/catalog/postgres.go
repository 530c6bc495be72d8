package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
)

type Postgres struct {
	queries *repository.Queries
}

func NewPostgres(queries *repository.Queries) Postgres {
	return Postgres{queries: queries}
}

func (p Postgres) Lookup(c context.Context, sel model.Selection) (model.CatalogEntry, error) {
	c, span := cartOtel.Tracer.Start(c, "catalog.Postgres Lookup")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "catalog.Postgres Lookup").
		Str(constants.KEY_LINE_KEY, sel.Key().String()).
		Logger()

	switch s := sel.(type) {
	case model.ComboSelection:
		logger = logger.With().Str(constants.KEY_PROCESS, "finding combo").Logger()
		logger.Debug().Msg("finding combo")
		combo, err := p.findCombo(c, s.ComboID)
		if err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return model.CatalogEntry{}, err
		}
		logger.Debug().Msg("found combo")
		return Entry(sel, nil, &combo), nil
	case model.VariantSelection, model.ProductSelection:
		logger = logger.With().Str(constants.KEY_PROCESS, "finding product").Logger()
		logger.Debug().Msg("finding product")
		product, err := p.findProduct(c, sel.Key().ProductID)
		if err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return model.CatalogEntry{}, err
		}
		logger.Debug().Msg("found product")
		return Entry(sel, &product, nil), nil
	default:
		err := fmt.Errorf("failed looking up catalog with error=unknown selection kind %T", sel)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return model.CatalogEntry{}, err
	}
}

func (p Postgres) findProduct(c context.Context, id uuid.UUID) (model.Product, error) {
	row, err := p.queries.FindProductById(c, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, fmt.Errorf("product id=%s %w", id, cartErrors.ErrEntryNotFound)
		}
		return model.Product{}, fmt.Errorf("failed finding product id=%s with error=%w", id, err)
	}
	variants, err := p.queries.FindVariantsByProductId(c, id)
	if err != nil {
		return model.Product{}, fmt.Errorf("failed finding variants of product id=%s with error=%w", id, err)
	}
	return NormalizeProduct(rawProductFromRows(row, variants))
}

func (p Postgres) findCombo(c context.Context, id uuid.UUID) (model.Combo, error) {
	row, err := p.queries.FindComboById(c, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Combo{}, fmt.Errorf("combo id=%s %w", id, cartErrors.ErrEntryNotFound)
		}
		return model.Combo{}, fmt.Errorf("failed finding combo id=%s with error=%w", id, err)
	}
	items, err := p.queries.FindComboItemsByComboId(c, id)
	if err != nil {
		return model.Combo{}, fmt.Errorf("failed finding items of combo id=%s with error=%w", id, err)
	}
	return NormalizeCombo(rawComboFromRows(row, items))
}

func rawProductFromRows(p repository.Product, vs []repository.ProductVariant) RawProduct {
	variants := make([]RawVariant, len(vs))
	for i, v := range vs {
		active := v.IsActive
		variants[i] = RawVariant{
			ID:        v.ID,
			ProductID: v.ProductID,
			Price:     repository.DecimalFromNumeric(v.Price),
			IsActive:  &active,
			IsDefault: v.IsDefault,
			Images:    v.Images,
		}
	}
	return RawProduct{
		ID:       p.ID,
		Name:     p.Name,
		BrandID:  p.BrandID,
		Price:    repository.DecimalFromNumeric(p.Price),
		Image:    repository.TextOrEmpty(p.Image),
		Variants: variants,
	}
}

func rawComboFromRows(c repository.ProductCombo, is []repository.ProductComboItem) RawCombo {
	items := make([]RawComboItem, len(is))
	for i, item := range is {
		items[i] = RawComboItem{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity}
	}
	return RawCombo{
		ID:    c.ID,
		Name:  c.Name,
		Price: repository.DecimalFromNumeric(c.Price),
		Image: repository.TextOrEmpty(c.Image),
		Items: items,
	}
}
