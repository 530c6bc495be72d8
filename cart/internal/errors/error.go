package errors

import (
	"errors"
	"fmt"

	"github.com/Alturino/storefront/cart/internal/model"
)

var (
	ErrNotReady      = errors.New("cart is not ready")
	ErrLineNotFound  = errors.New("cart line not found")
	ErrSuperseded    = errors.New("cart write superseded by a newer version")
	ErrCatalogLookup = errors.New("failed looking up catalog entry")
	ErrEntryNotFound = errors.New("catalog entry not found")
	ErrWrongOwner    = errors.New("cart belongs to another owner")
	ErrSessionClosed = errors.New("cart session closed")
	ErrTokenInUse    = errors.New("session token already in use")
	ErrAmbiguousLine = model.ErrAmbiguousLine
	ErrInvalidLine   = model.ErrInvalidLine
	ErrInvalidOwner  = model.ErrInvalidOwner
)

// ValidationError rejects a mutation before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Op string

const (
	OpLoad    Op = "load"
	OpReplace Op = "replace"
	OpClear   Op = "clear"
)

type PersistenceError struct {
	Op    Op
	Owner model.Owner
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed %s cart of owner=%s with error=%s", e.Op, e.Owner, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Side string

const (
	SideAnonymous Side = "anonymous"
	SideDurable   Side = "durable"
)

// MergeAnomaly is a soft finding: duplicate keys inside one side of a merge.
// They are collapsed additively, never rejected.
type MergeAnomaly struct {
	Key         model.Key
	Side        Side
	Occurrences int
}

func (a MergeAnomaly) Error() string {
	return fmt.Sprintf("merge anomaly key=%s side=%s occurrences=%d", a.Key, a.Side, a.Occurrences)
}
