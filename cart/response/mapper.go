package response

import (
	"github.com/Alturino/storefront/cart/internal/model"
	"github.com/Alturino/storefront/cart/internal/session"
)

func FromLine(l model.Line) Line {
	p := l.Payload()
	return Line{
		ProductID: p.ProductID,
		VariantID: p.VariantID,
		ComboID:   p.ComboID,
		Kind:      l.Selection.Kind().String(),
		Quantity:  l.Quantity,
		UnitPrice: l.Snapshot.UnitPrice,
		Subtotal:  l.Subtotal(),
		Name:      l.Snapshot.Name,
		Image:     l.Snapshot.Image,
	}
}

func FromSession(s *session.Session) Cart {
	st := s.Store()
	lines := st.Lines()
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = FromLine(l)
	}
	totals := st.Totals()
	cart := Cart{
		Owner:    st.Owner().String(),
		State:    st.State().String(),
		Version:  st.Version(),
		Degraded: st.Degraded(),
		Pending:  s.MergePending(),
		Lines:    out,
		Totals:   Totals{Items: totals.Items, Price: totals.Price},
	}
	if err := st.LastError(); err != nil {
		cart.Error = err.Error()
	}
	return cart
}
