// Package pricing resolves the unit price of a selection against its catalog
// entry. Everything here is pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Alturino/storefront/cart/internal/model"
)

// Resolve returns the effective unit price: variant price for a variant
// selection, the fixed bundle price for a combo, and the product chain (base
// price, default variant, first variant, zero) otherwise. A variant missing
// from the entry falls back to the product chain.
func Resolve(sel model.Selection, entry model.CatalogEntry) decimal.Decimal {
	switch s := sel.(type) {
	case model.VariantSelection:
		if v, ok := variantOf(s, entry); ok {
			return v.Price
		}
		return productPrice(entry.Product)
	case model.ComboSelection:
		if entry.Combo != nil && entry.Combo.ID == s.ComboID {
			return entry.Combo.Price
		}
		return decimal.Zero
	case model.ProductSelection:
		return productPrice(entry.Product)
	default:
		return decimal.Zero
	}
}

// Describe snapshots price and display metadata for a new line.
func Describe(sel model.Selection, entry model.CatalogEntry) model.Snapshot {
	snapshot := model.Snapshot{UnitPrice: Resolve(sel, entry)}
	switch s := sel.(type) {
	case model.ComboSelection:
		if entry.Combo != nil {
			snapshot.Name = entry.Combo.Name
			snapshot.Image = entry.Combo.Image
		}
	case model.VariantSelection:
		if entry.Product != nil {
			snapshot.Name = entry.Product.Name
			snapshot.Image = entry.Product.Image
		}
		if v, ok := variantOf(s, entry); ok && len(v.Images) > 0 {
			snapshot.Image = v.Images[0]
		}
	case model.ProductSelection:
		if entry.Product != nil {
			snapshot.Name = entry.Product.Name
			snapshot.Image = entry.Product.Image
		}
	}
	return snapshot
}

// Effective is the price a line was added with. It is never re-derived from
// the catalog.
func Effective(line model.Line) decimal.Decimal {
	return line.Snapshot.UnitPrice
}

func variantOf(s model.VariantSelection, entry model.CatalogEntry) (model.Variant, bool) {
	if entry.Variant != nil && entry.Variant.ID == s.VariantID {
		return *entry.Variant, true
	}
	if entry.Product != nil {
		return entry.Product.Variant(s.VariantID)
	}
	return model.Variant{}, false
}

func productPrice(p *model.Product) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	if p.Price.Valid {
		return p.Price.Decimal
	}
	if v, ok := DefaultVariant(*p); ok {
		return v.Price
	}
	return decimal.Zero
}

// DefaultVariant picks the variant flagged default, else the first one. Active
// variants are preferred whenever at least one exists.
func DefaultVariant(p model.Product) (model.Variant, bool) {
	candidates := make([]model.Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v.Active {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		candidates = p.Variants
	}
	for _, v := range candidates {
		if v.Default {
			return v, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], true
	}
	return model.Variant{}, false
}
