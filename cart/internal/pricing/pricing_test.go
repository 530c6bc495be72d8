package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Alturino/storefront/cart/internal/model"
)

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func basePrice(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: price(v), Valid: true}
}

func TestResolve(t *testing.T) {
	productID, comboID := uuid.New(), uuid.New()
	v1 := model.Variant{ID: uuid.New(), ProductID: productID, Price: price(500), Active: true}
	v2 := model.Variant{ID: uuid.New(), ProductID: productID, Price: price(700), Active: true, Default: true}
	inactive := model.Variant{ID: uuid.New(), ProductID: productID, Price: price(900), Default: true}
	combo := &model.Combo{
		ID:    comboID,
		Name:  "Breakfast bundle",
		Price: price(1200),
		Items: []model.ComboItem{{ProductID: productID, VariantID: uuid.NullUUID{UUID: v1.ID, Valid: true}, Quantity: 3}},
	}

	tests := []struct {
		name     string
		sel      model.Selection
		entry    model.CatalogEntry
		expected decimal.Decimal
	}{
		{
			name:     "given variant selection should return variant price over base price",
			sel:      model.VariantSelection{ProductID: productID, VariantID: v1.ID},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID, Price: basePrice(250), Variants: []model.Variant{v1}}, Variant: &v1},
			expected: price(500),
		},
		{
			name:     "given variant selection and variant only on product should return variant price",
			sel:      model.VariantSelection{ProductID: productID, VariantID: v2.ID},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID, Variants: []model.Variant{v1, v2}}},
			expected: price(700),
		},
		{
			name:     "given unknown variant should fall back to base price",
			sel:      model.VariantSelection{ProductID: productID, VariantID: uuid.New()},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID, Price: basePrice(250)}},
			expected: price(250),
		},
		{
			name:     "given combo selection should return fixed price ignoring constituents",
			sel:      model.ComboSelection{ComboID: comboID},
			entry:    model.CatalogEntry{Combo: combo},
			expected: price(1200),
		},
		{
			name:     "given combo selection without combo in entry should return zero",
			sel:      model.ComboSelection{ComboID: comboID},
			entry:    model.CatalogEntry{},
			expected: decimal.Zero,
		},
		{
			name:     "given product with base price should return base price",
			sel:      model.ProductSelection{ProductID: productID},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID, Price: basePrice(250), Variants: []model.Variant{v2}}},
			expected: price(250),
		},
		{
			name:     "given product without base price should return default variant price",
			sel:      model.ProductSelection{ProductID: productID},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID, Variants: []model.Variant{v1, v2}}},
			expected: price(700),
		},
		{
			name:     "given product whose default variant is inactive should skip it",
			sel:      model.ProductSelection{ProductID: productID},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID, Variants: []model.Variant{inactive, v1}}},
			expected: price(500),
		},
		{
			name:     "given product without base price or default should return first variant price",
			sel:      model.ProductSelection{ProductID: productID},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID, Variants: []model.Variant{v1, {ID: uuid.New(), Price: price(10), Active: true}}}},
			expected: price(500),
		},
		{
			name:     "given product without price or variants should return zero",
			sel:      model.ProductSelection{ProductID: productID},
			entry:    model.CatalogEntry{Product: &model.Product{ID: productID}},
			expected: decimal.Zero,
		},
		{
			name:     "given empty entry should return zero",
			sel:      model.ProductSelection{ProductID: productID},
			entry:    model.CatalogEntry{},
			expected: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := Resolve(tt.sel, tt.entry)
			assert.True(t, tt.expected.Equal(actual), "expected %s got %s", tt.expected, actual)
		})
	}
}

// Every combination of populated tiers follows variant, then combo, then product.
func TestResolvePriority(t *testing.T) {
	productID, comboID := uuid.New(), uuid.New()
	variant := model.Variant{ID: uuid.New(), ProductID: productID, Price: price(500), Active: true}
	product := &model.Product{ID: productID, Price: basePrice(250), Variants: []model.Variant{variant}}
	combo := &model.Combo{ID: comboID, Price: price(1200)}

	for _, hasVariant := range []bool{false, true} {
		for _, hasCombo := range []bool{false, true} {
			payload := model.Payload{ProductID: uuid.NullUUID{UUID: productID, Valid: true}, Quantity: 1}
			expected := price(250)
			if hasCombo {
				payload.ComboID = uuid.NullUUID{UUID: comboID, Valid: true}
				expected = price(1200)
			}
			if hasVariant {
				payload.VariantID = uuid.NullUUID{UUID: variant.ID, Valid: true}
				expected = price(500)
			}

			line, _ := payload.Line()
			actual := Resolve(line.Selection, model.CatalogEntry{Product: product, Variant: &variant, Combo: combo})
			assert.True(t, expected.Equal(actual), "variant=%t combo=%t expected %s got %s", hasVariant, hasCombo, expected, actual)
		}
	}
}

func TestDescribe(t *testing.T) {
	productID := uuid.New()
	variant := model.Variant{ID: uuid.New(), ProductID: productID, Price: price(500), Images: []string{"v1.png"}}
	product := &model.Product{ID: productID, Name: "Green tea", Image: "tea.png", Variants: []model.Variant{variant}}

	actual := Describe(model.VariantSelection{ProductID: productID, VariantID: variant.ID}, model.CatalogEntry{Product: product})

	assert.Equal(t, "Green tea", actual.Name)
	assert.Equal(t, "v1.png", actual.Image)
	assert.True(t, price(500).Equal(actual.UnitPrice))
	assert.True(t, price(500).Equal(Effective(model.Line{Snapshot: actual})))
}
