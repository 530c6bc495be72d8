// Package persistence loads and fully replaces the lines of one owner's cart.
// Anonymous owners live in ephemeral storage, users in PostgreSQL.
package persistence

import (
	"context"

	"github.com/Alturino/storefront/cart/internal/model"
)

// Loaded is what a load returns. Version is the sequence token of the write
// that produced Lines; zero means nothing was ever written.
type Loaded struct {
	Lines   []model.Payload `json:"lines"`
	Version uint64          `json:"version"`
}

type Persister interface {
	Load(c context.Context, owner model.Owner) (Loaded, error)
	// Replace swaps the whole stored line set for lines. A version not newer
	// than the stored one returns errors.ErrSuperseded on stores that track it.
	Replace(c context.Context, owner model.Owner, lines []model.Payload, version uint64) error
}

// Clearer drops an owner's stored cart entirely.
type Clearer interface {
	Clear(c context.Context, owner model.Owner) error
}

type Store interface {
	Persister
	Clearer
}
