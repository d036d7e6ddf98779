package membership

// Tier is the derived membership rank. It is a pure function of the
// account's cumulative xp and purchase count, recomputed from scratch on
// every update; no transition history is stored.
type Tier uint8

const (
	TierNone Tier = iota
	TierSilver
	TierGold
	TierPlatinum
)

const (
	minPurchasesForTier = 3
	silverXPThreshold   = 100
	goldXPThreshold     = 250
	platinumXPThreshold = 500
)

// Label returns the human-readable tier name.
func (t Tier) Label() string {
	switch t {
	case TierSilver:
		return "Silver"
	case TierGold:
		return "Gold"
	case TierPlatinum:
		return "Platinum"
	default:
		return "None"
	}
}

// TierFor recomputes the rank from the two monotonic counters. Fewer than
// three purchases always rank None regardless of xp.
func TierFor(totalXP, totalPurchases uint64) Tier {
	if totalPurchases < minPurchasesForTier {
		return TierNone
	}
	switch {
	case totalXP >= platinumXPThreshold:
		return TierPlatinum
	case totalXP >= goldXPThreshold:
		return TierGold
	case totalXP >= silverXPThreshold:
		return TierSilver
	default:
		return TierNone
	}
}
