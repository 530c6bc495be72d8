package model

import "errors"

var (
	ErrInvalidLine   = errors.New("invalid cart line")
	ErrAmbiguousLine = errors.New("cart line has both variant and combo, variant wins")
	ErrInvalidOwner  = errors.New("invalid cart owner")
)
