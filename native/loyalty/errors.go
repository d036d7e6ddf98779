package loyalty

import "errors"

var (
	ErrUnauthorized          = errors.New("loyalty: unauthorized")
	ErrInsufficientPoints    = errors.New("loyalty: insufficient points")
	ErrDiscountAlreadyActive = errors.New("loyalty: discount already active")
	ErrInvalidDiscount       = errors.New("loyalty: invalid discount")
	ErrMembershipNotWired    = errors.New("loyalty: membership registry not configured")
)
