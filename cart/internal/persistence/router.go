package persistence

import (
	"context"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
)

// Router sends anonymous owners to the ephemeral strategy and users to the
// durable one.
type Router struct {
	Anonymous Store
	User      Persister
}

func NewRouter(anonymous Store, user Persister) Router {
	return Router{Anonymous: anonymous, User: user}
}

func (r Router) pick(op cartErrors.Op, owner model.Owner) (Persister, error) {
	switch owner.Kind {
	case model.OwnerAnonymous:
		return r.Anonymous, nil
	case model.OwnerUser:
		return r.User, nil
	default:
		return nil, &cartErrors.PersistenceError{Op: op, Owner: owner, Err: cartErrors.ErrInvalidOwner}
	}
}

func (r Router) Load(c context.Context, owner model.Owner) (Loaded, error) {
	p, err := r.pick(cartErrors.OpLoad, owner)
	if err != nil {
		return Loaded{}, err
	}
	return p.Load(c, owner)
}

func (r Router) Replace(c context.Context, owner model.Owner, lines []model.Payload, version uint64) error {
	p, err := r.pick(cartErrors.OpReplace, owner)
	if err != nil {
		return err
	}
	return p.Replace(c, owner, lines, version)
}

// Clear only applies to anonymous carts; user carts are emptied through
// Replace so the version guard still holds.
func (r Router) Clear(c context.Context, owner model.Owner) error {
	if !owner.IsAnonymous() {
		return &cartErrors.PersistenceError{Op: cartErrors.OpClear, Owner: owner, Err: cartErrors.ErrWrongOwner}
	}
	return r.Anonymous.Clear(c, owner)
}
