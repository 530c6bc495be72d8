package model

import (
	"fmt"

	"github.com/google/uuid"
)

type Kind uint8

const (
	KindProduct Kind = iota + 1
	KindVariant
	KindCombo
)

func (k Kind) String() string {
	switch k {
	case KindProduct:
		return "product"
	case KindVariant:
		return "variant"
	case KindCombo:
		return "combo"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Key is the composite identity of a cart line. Absent ids are uuid.Nil, which
// keeps Key comparable and usable as a map key.
type Key struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	ComboID   uuid.UUID `json:"combo_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ProductID, k.VariantID, k.ComboID)
}

// Selection is what a cart line refers to. Implementations are closed to this
// package: ProductSelection, VariantSelection and ComboSelection.
type Selection interface {
	Key() Key
	Kind() Kind
	isSelection()
}

type ProductSelection struct {
	ProductID uuid.UUID `json:"product_id"`
}

func (s ProductSelection) Key() Key   { return Key{ProductID: s.ProductID} }
func (s ProductSelection) Kind() Kind { return KindProduct }
func (ProductSelection) isSelection() {}

type VariantSelection struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
}

func (s VariantSelection) Key() Key {
	return Key{ProductID: s.ProductID, VariantID: s.VariantID}
}
func (s VariantSelection) Kind() Kind { return KindVariant }
func (VariantSelection) isSelection() {}

type ComboSelection struct {
	ComboID uuid.UUID `json:"combo_id"`
}

func (s ComboSelection) Key() Key   { return Key{ComboID: s.ComboID} }
func (s ComboSelection) Kind() Kind { return KindCombo }
func (ComboSelection) isSelection() {}

// SelectionFromKey rebuilds a selection from a key. A key carrying both a
// variant and a combo resolves to the variant and reports ErrAmbiguousLine next
// to the selection; callers log it and keep going.
func SelectionFromKey(k Key) (Selection, error) {
	switch {
	case k.VariantID != uuid.Nil && k.ComboID != uuid.Nil:
		if k.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: variant=%s without product", ErrInvalidLine, k.VariantID)
		}
		return VariantSelection{ProductID: k.ProductID, VariantID: k.VariantID},
			fmt.Errorf("%w: variant=%s combo=%s", ErrAmbiguousLine, k.VariantID, k.ComboID)
	case k.VariantID != uuid.Nil:
		if k.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: variant=%s without product", ErrInvalidLine, k.VariantID)
		}
		return VariantSelection{ProductID: k.ProductID, VariantID: k.VariantID}, nil
	case k.ComboID != uuid.Nil:
		return ComboSelection{ComboID: k.ComboID}, nil
	case k.ProductID != uuid.Nil:
		return ProductSelection{ProductID: k.ProductID}, nil
	default:
		return nil, fmt.Errorf("%w: empty key", ErrInvalidLine)
	}
}
