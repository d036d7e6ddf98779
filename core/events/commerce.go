package events

import "math/big"

const (
	// TypeProductAdded is emitted when the owner registers a new catalog
	// entry.
	TypeProductAdded = "catalog.product.added"
	// TypePurchaseCompleted is emitted after the full purchase unit commits.
	TypePurchaseCompleted = "payment.purchase.completed"
	// TypeMembershipCancelled is emitted when a buyer cancels their active
	// membership.
	TypeMembershipCancelled = "payment.membership.cancelled"
	// TypePointsRedeemed is emitted when an account burns loyalty points.
	TypePointsRedeemed = "loyalty.points.redeemed"
	// TypeDiscountGranted is emitted when an account converts points into a
	// pending discount.
	TypeDiscountGranted = "loyalty.discount.granted"
	// TypeDiscountConsumed is emitted when a purchase consumes the pending
	// discount.
	TypeDiscountConsumed = "loyalty.discount.consumed"
	// TypeTierUpdated is emitted whenever the membership registry recomputes
	// an account's tier.
	TypeTierUpdated = "membership.tier.updated"
)

// ProductAdded captures a newly registered catalog entry.
type ProductAdded struct {
	ID       uint64
	Name     string
	PriceWei *big.Int
}

// EventType implements the Event interface.
func (ProductAdded) EventType() string { return TypeProductAdded }

// PurchaseCompleted captures the settled purchase including the effective
// price after any consumed discount.
type PurchaseCompleted struct {
	Buyer        [20]byte
	ProductID    uint64
	PaidWei      *big.Int
	DiscountBps  uint32
	PointsIssued uint64
	XPIssued     uint64
}

// EventType implements the Event interface.
func (PurchaseCompleted) EventType() string { return TypePurchaseCompleted }

// MembershipCancelled captures a cancelled membership. Points and xp issued
// for the original purchase are not reversed.
type MembershipCancelled struct {
	Buyer     [20]byte
	ProductID uint64
}

// EventType implements the Event interface.
func (MembershipCancelled) EventType() string { return TypeMembershipCancelled }

// PointsRedeemed captures a loyalty point burn.
type PointsRedeemed struct {
	Account [20]byte
	Amount  uint64
	Balance uint64
}

// EventType implements the Event interface.
func (PointsRedeemed) EventType() string { return TypePointsRedeemed }

// DiscountGranted captures a pending discount bought with points.
type DiscountGranted struct {
	Account    [20]byte
	Bps        uint32
	PointsCost uint64
}

// EventType implements the Event interface.
func (DiscountGranted) EventType() string { return TypeDiscountGranted }

// DiscountConsumed captures the one-shot consumption of a pending discount
// during a purchase.
type DiscountConsumed struct {
	Account [20]byte
	Bps     uint32
}

// EventType implements the Event interface.
func (DiscountConsumed) EventType() string { return TypeDiscountConsumed }

// TierUpdated captures a tier recomputation from the monotonic counters.
type TierUpdated struct {
	Account        [20]byte
	Tier           uint8
	TierLabel      string
	TotalXP        uint64
	TotalPurchases uint64
}

// EventType implements the Event interface.
func (TierUpdated) EventType() string { return TypeTierUpdated }
