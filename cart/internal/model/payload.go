package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payload is the persisted shape of a line. Both storage strategies read and
// write it; Line() is the ingress normalization back into the sum type.
type Payload struct {
	ProductID uuid.NullUUID   `json:"product_id"`
	VariantID uuid.NullUUID   `json:"variant_id"`
	ComboID   uuid.NullUUID   `json:"combo_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

func nullable(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func (p Payload) Key() Key {
	k := Key{}
	if p.ProductID.Valid {
		k.ProductID = p.ProductID.UUID
	}
	if p.VariantID.Valid {
		k.VariantID = p.VariantID.UUID
	}
	if p.ComboID.Valid {
		k.ComboID = p.ComboID.UUID
	}
	return k
}

// Line converts a payload into a Line. A non-positive quantity or a payload
// with neither product nor combo returns ErrInvalidLine. A payload with both a
// variant and a combo returns the variant line together with ErrAmbiguousLine.
func (p Payload) Line() (Line, error) {
	if p.Quantity <= 0 {
		return Line{}, fmt.Errorf("%w: quantity=%d", ErrInvalidLine, p.Quantity)
	}
	sel, err := SelectionFromKey(p.Key())
	if err != nil && !errors.Is(err, ErrAmbiguousLine) {
		return Line{}, err
	}
	return Line{
		Selection: sel,
		Quantity:  p.Quantity,
		Snapshot:  Snapshot{UnitPrice: p.UnitPrice, Name: p.Name, Image: p.Image},
	}, err
}

func (l Line) Payload() Payload {
	k := l.Key()
	return Payload{
		ProductID: nullable(k.ProductID),
		VariantID: nullable(k.VariantID),
		ComboID:   nullable(k.ComboID),
		Quantity:  l.Quantity,
		UnitPrice: l.Snapshot.UnitPrice,
		Name:      l.Snapshot.Name,
		Image:     l.Snapshot.Image,
	}
}

func Payloads(lines []Line) []Payload {
	out := make([]Payload, len(lines))
	for i, l := range lines {
		out[i] = l.Payload()
	}
	return out
}

// Lines normalizes persisted payloads. Invalid payloads are dropped, ambiguous
// ones are kept under the variant tie-break, and duplicates are collapsed. Every
// dropped or ambiguous payload is reported in the returned errors.
func Lines(payloads []Payload) ([]Line, []error) {
	var errs []error
	lines := make([]Line, 0, len(payloads))
	for _, p := range payloads {
		l, err := p.Line()
		if err != nil {
			errs = append(errs, err)
			if !errors.Is(err, ErrAmbiguousLine) {
				continue
			}
		}
		lines = append(lines, l)
	}
	lines, _ = Collapse(lines)
	return lines, errs
}
