package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/pricing"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

const (
	MutationAddLine     = "add_line"
	MutationAddLines    = "add_lines"
	MutationAddCombo    = "add_combo"
	MutationRemoveLine  = "remove_line"
	MutationSetQuantity = "set_quantity"
	MutationClear       = "clear"
	MutationCheckout    = "complete_checkout"
)

// maxSnapshotRounds bounds how often a mutation goes back to the catalog when
// a line it expected to increment disappeared in the meantime.
const maxSnapshotRounds = 3

func validateSelection(field string, sel model.Selection) error {
	if sel == nil {
		return cartErrors.ValidationError{Field: field, Reason: "missing selection"}
	}
	switch s := sel.(type) {
	case model.ProductSelection:
		if s.ProductID == uuid.Nil {
			return cartErrors.ValidationError{Field: field, Reason: "missing product id"}
		}
	case model.VariantSelection:
		if s.ProductID == uuid.Nil || s.VariantID == uuid.Nil {
			return cartErrors.ValidationError{Field: field, Reason: "missing product or variant id"}
		}
	case model.ComboSelection:
		if s.ComboID == uuid.Nil {
			return cartErrors.ValidationError{Field: field, Reason: "missing combo id"}
		}
	}
	return nil
}

// AddLine increments the line with the same key or appends a new one priced
// from the catalog right now.
func (s *Store) AddLine(c context.Context, sel model.Selection, quantity int32) (<-chan Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Store AddLine")
	defer span.End()

	ch, err := s.addLines(c, MutationAddLine, []model.Selection{sel}, []int32{quantity})
	if err != nil {
		otel.RecordError(err, span)
	}
	return ch, err
}

// AddLines adds several selections atomically. Both slices must have the same
// length and every quantity must be positive; otherwise nothing is applied.
func (s *Store) AddLines(c context.Context, sels []model.Selection, quantities []int32) (<-chan Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Store AddLines")
	defer span.End()

	ch, err := s.addLines(c, MutationAddLines, sels, quantities)
	if err != nil {
		otel.RecordError(err, span)
	}
	return ch, err
}

func (s *Store) AddCombo(c context.Context, comboID uuid.UUID, quantity int32) (<-chan Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Store AddCombo")
	defer span.End()

	ch, err := s.addLines(c, MutationAddCombo, []model.Selection{model.ComboSelection{ComboID: comboID}}, []int32{quantity})
	if err != nil {
		otel.RecordError(err, span)
	}
	return ch, err
}

func (s *Store) addLines(c context.Context, mutation string, sels []model.Selection, quantities []int32) (<-chan Result, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Store addLines").
		Str(constants.KEY_MUTATION, mutation).
		Int(constants.KEY_CART_LINES, len(sels)).
		Logger()
	c = logger.WithContext(c)

	if len(sels) != len(quantities) {
		return nil, cartErrors.ValidationError{
			Field:  "quantities",
			Reason: fmt.Sprintf("got %d selections and %d quantities", len(sels), len(quantities)),
		}
	}
	if len(sels) == 0 {
		return nil, cartErrors.ValidationError{Field: "selections", Reason: "empty"}
	}
	for i, sel := range sels {
		if err := validateSelection(fmt.Sprintf("selections[%d]", i), sel); err != nil {
			return nil, err
		}
		if quantities[i] <= 0 || quantities[i] > model.MaxQuantity {
			return nil, cartErrors.ValidationError{
				Field:  fmt.Sprintf("quantities[%d]", i),
				Reason: fmt.Sprintf("must be between 1 and %d, got %d", model.MaxQuantity, quantities[i]),
			}
		}
	}

	snapshots := map[model.Key]model.Snapshot{}
	for round := 0; round < maxSnapshotRounds; round++ {
		if err := s.fetchSnapshots(c, sels, snapshots); err != nil {
			return nil, err
		}

		var missing bool
		ch, err := s.mutate(c, mutation, func(lines []model.Line) ([]model.Line, []Event, error) {
			var events []Event
			for i, sel := range sels {
				k := sel.Key()
				if j := model.IndexOf(lines, k); j >= 0 {
					sum, ok := model.AddQuantity(lines[j].Quantity, quantities[i])
					if !ok {
						return nil, nil, cartErrors.ValidationError{
							Field:  fmt.Sprintf("quantities[%d]", i),
							Reason: fmt.Sprintf("line %s would exceed %d", k, model.MaxQuantity),
						}
					}
					lines[j].Quantity = sum
					continue
				}
				snapshot, ok := snapshots[k]
				if !ok {
					missing = true
					return nil, nil, errSnapshotMissing
				}
				line := model.Line{Selection: sel, Quantity: quantities[i], Snapshot: snapshot}
				lines = append(lines, line)
				events = append(events, LineAdded{Line: line})
			}
			return lines, events, nil
		})
		if missing {
			logger.Debug().Int("round", round).Msg("line vanished while pricing, refetching snapshots")
			continue
		}
		return ch, err
	}
	return nil, fmt.Errorf("failed snapshotting lines with error=%w", errSnapshotMissing)
}

var errSnapshotMissing = fmt.Errorf("%w: no price snapshot for new line", cartErrors.ErrCatalogLookup)

// fetchSnapshots prices every selection that is not in the cart yet and not
// priced already. Catalog I/O happens outside the store lock.
func (s *Store) fetchSnapshots(c context.Context, sels []model.Selection, into map[model.Key]model.Snapshot) error {
	logger := zerolog.Ctx(c).With().Str(constants.KEY_PROCESS, "snapshotting prices").Logger()

	s.mu.Lock()
	present := map[model.Key]bool{}
	for _, l := range s.lines {
		present[l.Key()] = true
	}
	s.mu.Unlock()

	for _, sel := range sels {
		k := sel.Key()
		if present[k] {
			continue
		}
		if _, ok := into[k]; ok {
			continue
		}
		entry, err := s.catalog.Lookup(c, sel)
		if err != nil {
			err = fmt.Errorf("%w key=%s with error=%w", cartErrors.ErrCatalogLookup, k, err)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		into[k] = pricing.Describe(sel, entry)
		logger.Debug().
			Str(constants.KEY_LINE_KEY, k.String()).
			Stringer("unit_price", into[k].UnitPrice).
			Msg("snapshotted price")
	}
	return nil
}

func (s *Store) RemoveLine(c context.Context, key model.Key) (<-chan Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Store RemoveLine")
	defer span.End()

	ch, err := s.mutate(c, MutationRemoveLine, func(lines []model.Line) ([]model.Line, []Event, error) {
		return remove(lines, key)
	})
	if err != nil {
		otel.RecordError(err, span)
	}
	return ch, err
}

// SetQuantity overwrites a line's quantity. A quantity of zero or below
// removes the line.
func (s *Store) SetQuantity(c context.Context, key model.Key, quantity int32) (<-chan Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Store SetQuantity")
	defer span.End()

	ch, err := s.mutate(c, MutationSetQuantity, func(lines []model.Line) ([]model.Line, []Event, error) {
		if quantity <= 0 {
			return remove(lines, key)
		}
		if quantity > model.MaxQuantity {
			return nil, nil, cartErrors.ValidationError{
				Field:  "quantity",
				Reason: fmt.Sprintf("must be at most %d, got %d", model.MaxQuantity, quantity),
			}
		}
		i := model.IndexOf(lines, key)
		if i < 0 {
			return nil, nil, fmt.Errorf("%w: key=%s", cartErrors.ErrLineNotFound, key)
		}
		lines[i].Quantity = quantity
		return lines, nil, nil
	})
	if err != nil {
		otel.RecordError(err, span)
	}
	return ch, err
}

func remove(lines []model.Line, key model.Key) ([]model.Line, []Event, error) {
	i := model.IndexOf(lines, key)
	if i < 0 {
		return nil, nil, fmt.Errorf("%w: key=%s", cartErrors.ErrLineNotFound, key)
	}
	return append(lines[:i], lines[i+1:]...), nil, nil
}

func (s *Store) Clear(c context.Context) (<-chan Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Store Clear")
	defer span.End()

	ch, err := s.mutate(c, MutationClear, clearLines)
	if err != nil {
		otel.RecordError(err, span)
	}
	return ch, err
}

// CompleteCheckout empties the cart once an order was placed.
func (s *Store) CompleteCheckout(c context.Context) (<-chan Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Store CompleteCheckout")
	defer span.End()

	ch, err := s.mutate(c, MutationCheckout, clearLines)
	if err != nil {
		otel.RecordError(err, span)
	}
	return ch, err
}

func clearLines([]model.Line) ([]model.Line, []Event, error) {
	return []model.Line{}, nil, nil
}
