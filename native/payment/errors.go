package payment

import "errors"

var (
	ErrUnauthorized            = errors.New("payment: unauthorized")
	ErrInvalidProduct          = errors.New("payment: invalid product")
	ErrMembershipAlreadyActive = errors.New("payment: membership already active")
	ErrIncorrectPayment        = errors.New("payment: incorrect payment amount")
	ErrNoActiveMembership      = errors.New("payment: no active membership")
	ErrInsufficientFunds       = errors.New("payment: insufficient funds")
	ErrSellerNotConfigured     = errors.New("payment: seller not configured")
	ErrLoyaltyNotWired         = errors.New("payment: loyalty ledger not configured")
)
