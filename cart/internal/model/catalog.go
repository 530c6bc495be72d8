package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product, Variant and Combo are the canonical catalog shapes. They are only
// produced by the catalog normalization boundary.
type Product struct {
	ID       uuid.UUID           `json:"id"       validate:"required"`
	Name     string              `json:"name"     validate:"required"`
	BrandID  uuid.NullUUID       `json:"brand_id"`
	Price    decimal.NullDecimal `json:"price"`
	Image    string              `json:"image"`
	Variants []Variant           `json:"variants" validate:"dive"`
}

type Variant struct {
	ID        uuid.UUID       `json:"id"         validate:"required"`
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
	Default   bool            `json:"default"`
	Images    []string        `json:"images"`
}

type ComboItem struct {
	ProductID uuid.UUID     `json:"product_id" validate:"required"`
	VariantID uuid.NullUUID `json:"variant_id"`
	Quantity  int32         `json:"quantity"   validate:"gte=1"`
}

type Combo struct {
	ID    uuid.UUID       `json:"id"    validate:"required"`
	Name  string          `json:"name"  validate:"required"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
	Items []ComboItem     `json:"items" validate:"dive"`
}

func (p Product) Variant(id uuid.UUID) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// CatalogEntry is everything the price resolver may look at for one
// selection. Fields irrelevant to the selection kind stay nil.
type CatalogEntry struct {
	Product *Product `json:"product,omitempty"`
	Variant *Variant `json:"variant,omitempty"`
	Combo   *Combo   `json:"combo,omitempty"`
}
