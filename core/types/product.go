package types

import "math/big"

// Product is a catalog entry. Records are append-only: ids are assigned
// sequentially starting at 1 and everything except Active is immutable once
// created.
type Product struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PriceWei    *big.Int `json:"priceWei"`
	Active      bool     `json:"active"`
}

// Clone returns a deep copy of the product record.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	if p.PriceWei != nil {
		clone.PriceWei = new(big.Int).Set(p.PriceWei)
	} else {
		clone.PriceWei = big.NewInt(0)
	}
	return &clone
}
