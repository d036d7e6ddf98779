package catalog

import "errors"

var (
	ErrUnauthorized   = errors.New("catalog: unauthorized")
	ErrNotFound       = errors.New("catalog: product not found")
	ErrInvalidProduct = errors.New("catalog: invalid product")
)
