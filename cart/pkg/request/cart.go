package request

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Alturino/storefront/cart/internal/model"
)

// Selection identifies a line by its composite key. A variant needs its
// product; a combo stands alone.
type Selection struct {
	ProductID uuid.NullUUID `json:"productId"`
	VariantID uuid.NullUUID `json:"variantId"`
	ComboID   uuid.NullUUID `json:"comboId"`
}

func (s Selection) Key() model.Key {
	return model.Payload{ProductID: s.ProductID, VariantID: s.VariantID, ComboID: s.ComboID}.Key()
}

// Selection rejects ambiguous keys instead of tie-breaking them; a client
// sending both a variant and a combo made a mistake.
func (s Selection) Selection() (model.Selection, error) {
	sel, err := model.SelectionFromKey(s.Key())
	if err != nil {
		return nil, fmt.Errorf("failed parsing selection with error=%w", err)
	}
	return sel, nil
}

type AddLine struct {
	Selection
	Quantity int32 `validate:"required,gte=1,lte=9999" json:"quantity"`
}

type AddLines struct {
	Selections []Selection `validate:"required,min=1" json:"selections"`
	Quantities []int32     `validate:"required,min=1,dive,lte=9999" json:"quantities"`
}

func (a AddLines) Parse() ([]model.Selection, error) {
	sels := make([]model.Selection, len(a.Selections))
	for i, s := range a.Selections {
		sel, err := s.Selection()
		if err != nil {
			return nil, fmt.Errorf("selections[%d]: %w", i, err)
		}
		sels[i] = sel
	}
	return sels, nil
}

type AddCombo struct {
	ComboID  uuid.UUID `validate:"required"                json:"comboId"`
	Quantity int32     `validate:"required,gte=1,lte=9999" json:"quantity"`
}

// SetQuantity removes the line when Quantity is zero or less.
type SetQuantity struct {
	Selection
	Quantity int32 `validate:"lte=9999" json:"quantity"`
}

type RemoveLine struct {
	Selection
}
