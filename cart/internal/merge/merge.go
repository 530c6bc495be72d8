// Package merge folds an anonymous cart into a user's durable cart when the
// session becomes authenticated.
package merge

import (
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
)

// Merge adds every anonymous line onto the durable lines. Shared keys sum
// their quantities up to model.MaxQuantity and keep the durable snapshot.
// Keys found on one side only are carried over unchanged. Duplicates inside
// one side are collapsed first and reported as anomalies.
func Merge(anonymous, durable []model.Line) ([]model.Line, []cartErrors.MergeAnomaly) {
	r, rDups := model.Collapse(durable)
	l, lDups := model.Collapse(anonymous)
	anomalies := append(
		anomaliesOf(durable, rDups, cartErrors.SideDurable),
		anomaliesOf(anonymous, lDups, cartErrors.SideAnonymous)...,
	)

	merged := model.Clone(r)
	if merged == nil {
		merged = make([]model.Line, 0, len(l))
	}
	for _, line := range l {
		if i := model.IndexOf(merged, line.Key()); i >= 0 {
			merged[i].Quantity, _ = model.AddQuantity(merged[i].Quantity, line.Quantity)
			continue
		}
		merged = append(merged, line)
	}
	return merged, anomalies
}

func anomaliesOf(lines []model.Line, dups map[model.Key]int, side cartErrors.Side) []cartErrors.MergeAnomaly {
	if len(dups) == 0 {
		return nil
	}
	out := make([]cartErrors.MergeAnomaly, 0, len(dups))
	seen := map[model.Key]bool{}
	for _, line := range lines {
		k := line.Key()
		if n, ok := dups[k]; ok && !seen[k] {
			seen[k] = true
			out = append(out, cartErrors.MergeAnomaly{Key: k, Side: side, Occurrences: n})
		}
	}
	return out
}
