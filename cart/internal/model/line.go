package model

import (
	"github.com/shopspring/decimal"
)

// Snapshot is captured once when a line is created and never re-derived from
// the catalog afterwards.
type Snapshot struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

// MaxQuantity caps the quantity of a single line.
const MaxQuantity int32 = 9999

// AddQuantity sums two quantities, capping the result at MaxQuantity. ok is
// false when the cap was hit.
func AddQuantity(a, b int32) (sum int32, ok bool) {
	total := int64(a) + int64(b)
	if total > int64(MaxQuantity) {
		return MaxQuantity, false
	}
	return int32(total), true
}

type Line struct {
	Selection Selection
	Quantity  int32
	Snapshot  Snapshot
}

func (l Line) Key() Key { return l.Selection.Key() }

func (l Line) Subtotal() decimal.Decimal {
	return l.Snapshot.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
}

type Totals struct {
	Items int64           `json:"items"`
	Price decimal.Decimal `json:"price"`
}

func Sum(lines []Line) Totals {
	t := Totals{Price: decimal.Zero}
	for _, l := range lines {
		t.Items += int64(l.Quantity)
		t.Price = t.Price.Add(l.Subtotal())
	}
	return t
}

func Clone(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func IndexOf(lines []Line, k Key) int {
	for i, l := range lines {
		if l.Key() == k {
			return i
		}
	}
	return -1
}

// Collapse folds lines sharing a key into the first occurrence, summing
// quantities. The returned map counts occurrences of every key seen more than
// once and is nil when there were no duplicates.
func Collapse(lines []Line) ([]Line, map[Key]int) {
	var dups map[Key]int
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		i := IndexOf(out, l.Key())
		if i < 0 {
			out = append(out, l)
			continue
		}
		if dups == nil {
			dups = map[Key]int{}
		}
		if dups[l.Key()] == 0 {
			dups[l.Key()] = 1
		}
		dups[l.Key()]++
		out[i].Quantity, _ = AddQuantity(out[i].Quantity, l.Quantity)
	}
	return out, dups
}
