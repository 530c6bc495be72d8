package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type OwnerKind uint8

const (
	OwnerAnonymous OwnerKind = iota + 1
	OwnerUser
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerAnonymous:
		return "anonymous"
	case OwnerUser:
		return "user"
	default:
		return "unknown"
	}
}

// Owner scopes a cart to exactly one identity: an anonymous session token or
// an authenticated user id.
type Owner struct {
	Kind   OwnerKind `json:"kind"`
	Token  string    `json:"-"`
	UserID uuid.UUID `json:"user_id,omitempty"`
}

func Anonymous(token string) Owner { return Owner{Kind: OwnerAnonymous, Token: token} }

func User(id uuid.UUID) Owner { return Owner{Kind: OwnerUser, UserID: id} }

func (o Owner) IsAnonymous() bool { return o.Kind == OwnerAnonymous }

func (o Owner) IsUser() bool { return o.Kind == OwnerUser }

func (o Owner) Validate() error {
	switch o.Kind {
	case OwnerAnonymous:
		if strings.TrimSpace(o.Token) == "" {
			return fmt.Errorf("%w: empty session token", ErrInvalidOwner)
		}
		if o.UserID != uuid.Nil {
			return fmt.Errorf("%w: anonymous owner carries user id", ErrInvalidOwner)
		}
	case OwnerUser:
		if o.UserID == uuid.Nil {
			return fmt.Errorf("%w: nil user id", ErrInvalidOwner)
		}
		if o.Token != "" {
			return fmt.Errorf("%w: user owner carries session token", ErrInvalidOwner)
		}
	default:
		return fmt.Errorf("%w: kind=%s", ErrInvalidOwner, o.Kind)
	}
	return nil
}

// String never exposes the raw session token.
func (o Owner) String() string {
	switch o.Kind {
	case OwnerAnonymous:
		t := o.Token
		if len(t) > 6 {
			t = t[:6]
		}
		return "anonymous:" + t + "..."
	case OwnerUser:
		return "user:" + o.UserID.String()
	default:
		return "unknown"
	}
}
