package payment

import (
	"math"
	"math/big"
)

// RewardPolicy maps the effective purchase price to the points and xp issued
// for it. The mapping is an external policy parameter; the engine only
// requires that it is deterministic.
type RewardPolicy interface {
	RewardsFor(priceWei *big.Int) (points, xp uint64)
}

// PriceScaledRewards issues one point per UnitWei of effective price and
// XPFactor experience per point.
type PriceScaledRewards struct {
	UnitWei  *big.Int
	XPFactor uint64
}

// DefaultRewardPolicy returns the stock policy: one point per 1e15 minor
// units and two xp per point.
func DefaultRewardPolicy() PriceScaledRewards {
	return PriceScaledRewards{
		UnitWei:  big.NewInt(1_000_000_000_000_000),
		XPFactor: 2,
	}
}

// RewardsFor implements RewardPolicy.
func (p PriceScaledRewards) RewardsFor(priceWei *big.Int) (uint64, uint64) {
	if priceWei == nil || priceWei.Sign() <= 0 {
		return 0, 0
	}
	if p.UnitWei == nil || p.UnitWei.Sign() <= 0 {
		return 0, 0
	}
	units := new(big.Int).Quo(priceWei, p.UnitWei)
	if !units.IsUint64() {
		return math.MaxUint64, math.MaxUint64
	}
	points := units.Uint64()
	if p.XPFactor != 0 && points > math.MaxUint64/p.XPFactor {
		return points, math.MaxUint64
	}
	return points, points * p.XPFactor
}
