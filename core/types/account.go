package types

import "math/big"

// Account is the canonical per-address ledger record. Every component
// mutates its own slice of the record behind its authorization gate so the
// three ledgers cannot drift apart. Records are created lazily on first
// touch and never destroyed; balances may reach zero but the entry persists.
type Account struct {
	Nonce            uint64   `json:"nonce"`
	BalanceWei       *big.Int `json:"balanceWei"`
	PointsBalance    uint64   `json:"pointsBalance"`
	XP               uint64   `json:"xp"`
	PurchaseCount    uint64   `json:"purchaseCount"`
	DiscountBps      uint32   `json:"discountBps"`
	ActiveMembership uint64   `json:"activeMembership"` // product id, 0 = none
	Purchased        []uint64 `json:"purchased,omitempty"`
	Tier             uint8    `json:"tier"`
}

// EnsureDefaults backfills nil pointer fields so callers can mutate the
// record without nil checks.
func (a *Account) EnsureDefaults() *Account {
	if a == nil {
		return &Account{BalanceWei: big.NewInt(0)}
	}
	if a.BalanceWei == nil {
		a.BalanceWei = big.NewInt(0)
	}
	return a
}

// HasPurchased reports whether the product id is in the account's held set.
func (a *Account) HasPurchased(productID uint64) bool {
	if a == nil {
		return false
	}
	for _, id := range a.Purchased {
		if id == productID {
			return true
		}
	}
	return false
}

// AddPurchased records the product id in the held set. Duplicates are
// ignored to keep the set semantics.
func (a *Account) AddPurchased(productID uint64) {
	if a == nil || a.HasPurchased(productID) {
		return
	}
	a.Purchased = append(a.Purchased, productID)
}

// RemovePurchased drops the product id from the held set.
func (a *Account) RemovePurchased(productID uint64) {
	if a == nil {
		return
	}
	kept := a.Purchased[:0]
	for _, id := range a.Purchased {
		if id != productID {
			kept = append(kept, id)
		}
	}
	a.Purchased = kept
}

// Clone returns a deep copy of the account record.
func (a *Account) Clone() *Account {
	if a == nil {
		return (&Account{}).EnsureDefaults()
	}
	clone := *a
	clone.BalanceWei = new(big.Int).Set(a.EnsureDefaults().BalanceWei)
	clone.Purchased = append([]uint64(nil), a.Purchased...)
	return &clone
}
