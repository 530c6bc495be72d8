package catalog

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Alturino/storefront/cart/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type RawBrand struct {
	ID uuid.UUID `json:"id"`
}

// RawVariant accepts both the current and legacy variant shapes.
type RawVariant struct {
	ID        uuid.UUID           `json:"id"`
	ProductID uuid.UUID           `json:"product_id"`
	Price     decimal.NullDecimal `json:"price"`
	IsActive  *bool               `json:"is_active"`
	Active    *bool               `json:"active"`
	IsDefault bool                `json:"is_default"`
	Images    []string            `json:"images"`
	ImageURL  string              `json:"image_url"`
}

// RawProduct is a product as it arrives from any source: a direct query, a
// joined relation (product_variants, brand) or legacy cached fields (title,
// cached_price, image_url).
type RawProduct struct {
	ID              uuid.UUID           `json:"id"`
	Name            string              `json:"name"`
	Title           string              `json:"title"`
	Price           decimal.NullDecimal `json:"price"`
	CachedPrice     decimal.NullDecimal `json:"cached_price"`
	BrandID         uuid.NullUUID       `json:"brand_id"`
	Brand           *RawBrand           `json:"brand"`
	Image           string              `json:"image"`
	ImageURL        string              `json:"image_url"`
	Images          []string            `json:"images"`
	Variants        []RawVariant        `json:"variants"`
	ProductVariants []RawVariant        `json:"product_variants"`
}

type RawComboItem struct {
	ProductID uuid.UUID     `json:"product_id"`
	VariantID uuid.NullUUID `json:"variant_id"`
	Quantity  int32         `json:"quantity"`
}

type RawCombo struct {
	ID                uuid.UUID           `json:"id"`
	Name              string              `json:"name"`
	Title             string              `json:"title"`
	Price             decimal.NullDecimal `json:"price"`
	ComboPrice        decimal.NullDecimal `json:"combo_price"`
	Image             string              `json:"image"`
	ImageURL          string              `json:"image_url"`
	Items             []RawComboItem      `json:"items"`
	ProductComboItems []RawComboItem      `json:"product_combo_items"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstValid(values ...decimal.NullDecimal) decimal.NullDecimal {
	for _, v := range values {
		if v.Valid {
			return v
		}
	}
	return decimal.NullDecimal{}
}

func normalizeVariant(productID uuid.UUID, raw RawVariant) model.Variant {
	active := true
	switch {
	case raw.IsActive != nil:
		active = *raw.IsActive
	case raw.Active != nil:
		active = *raw.Active
	}
	images := raw.Images
	if len(images) == 0 && raw.ImageURL != "" {
		images = []string{raw.ImageURL}
	}
	pid := raw.ProductID
	if pid == uuid.Nil {
		pid = productID
	}
	return model.Variant{
		ID:        raw.ID,
		ProductID: pid,
		Price:     raw.Price.Decimal,
		Active:    active,
		Default:   raw.IsDefault,
		Images:    images,
	}
}

func NormalizeProduct(raw RawProduct) (model.Product, error) {
	brand := raw.BrandID
	if !brand.Valid && raw.Brand != nil && raw.Brand.ID != uuid.Nil {
		brand = uuid.NullUUID{UUID: raw.Brand.ID, Valid: true}
	}
	image := firstNonEmpty(raw.Image, raw.ImageURL)
	if image == "" && len(raw.Images) > 0 {
		image = raw.Images[0]
	}
	rawVariants := raw.Variants
	if len(rawVariants) == 0 {
		rawVariants = raw.ProductVariants
	}
	variants := make([]model.Variant, 0, len(rawVariants))
	for _, v := range rawVariants {
		variants = append(variants, normalizeVariant(raw.ID, v))
	}

	product := model.Product{
		ID:       raw.ID,
		Name:     firstNonEmpty(raw.Name, raw.Title),
		BrandID:  brand,
		Price:    firstValid(raw.Price, raw.CachedPrice),
		Image:    image,
		Variants: variants,
	}
	if err := validate.Struct(product); err != nil {
		return model.Product{}, fmt.Errorf("failed validating product id=%s with error=%w", raw.ID, err)
	}
	if product.Price.Valid && product.Price.Decimal.IsNegative() {
		return model.Product{}, fmt.Errorf("failed validating product id=%s with error=negative price", raw.ID)
	}
	return product, nil
}

func NormalizeCombo(raw RawCombo) (model.Combo, error) {
	rawItems := raw.Items
	if len(rawItems) == 0 {
		rawItems = raw.ProductComboItems
	}
	items := make([]model.ComboItem, 0, len(rawItems))
	for _, i := range rawItems {
		items = append(items, model.ComboItem(i))
	}
	price := firstValid(raw.Price, raw.ComboPrice)
	if !price.Valid {
		return model.Combo{}, fmt.Errorf("failed validating combo id=%s with error=missing price", raw.ID)
	}

	combo := model.Combo{
		ID:    raw.ID,
		Name:  firstNonEmpty(raw.Name, raw.Title),
		Price: price.Decimal,
		Image: firstNonEmpty(raw.Image, raw.ImageURL),
		Items: items,
	}
	if err := validate.Struct(combo); err != nil {
		return model.Combo{}, fmt.Errorf("failed validating combo id=%s with error=%w", raw.ID, err)
	}
	return combo, nil
}

// Entry builds the entry for a selection out of a normalized product or
// combo. The variant pointer is set only when the product carries it.
func Entry(sel model.Selection, product *model.Product, combo *model.Combo) model.CatalogEntry {
	entry := model.CatalogEntry{Product: product, Combo: combo}
	if s, ok := sel.(model.VariantSelection); ok && product != nil {
		if v, found := product.Variant(s.VariantID); found {
			entry.Variant = &v
		}
	}
	return entry
}
