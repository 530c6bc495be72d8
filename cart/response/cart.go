package response

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	Owner    string `json:"owner"`
	State    string `json:"state"`
	Version  uint64 `json:"version"`
	Degraded bool   `json:"degraded"`
	Pending  bool   `json:"mergePending"`
	Lines    []Line `json:"lines"`
	Totals   Totals `json:"totals"`
	Error    string `json:"error,omitempty"`
}

type Line struct {
	ProductID uuid.NullUUID   `json:"productId"`
	VariantID uuid.NullUUID   `json:"variantId"`
	ComboID   uuid.NullUUID   `json:"comboId"`
	Kind      string          `json:"kind"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

type Totals struct {
	Items int64           `json:"items"`
	Price decimal.Decimal `json:"price"`
}

type Mutation struct {
	Mutation string `json:"mutation"`
	Version  uint64 `json:"version"`
	Cart     Cart   `json:"cart"`
}
