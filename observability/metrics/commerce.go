package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics tracks the outcome of ledger operations.
type CommerceMetrics struct {
	purchasesCompleted   prometheus.Counter
	purchaseFailures     *prometheus.CounterVec
	pointsRedeemed       prometheus.Counter
	discountsGranted     prometheus.Counter
	discountsConsumed    prometheus.Counter
	membershipsCancelled prometheus.Counter
	tierUpdates          *prometheus.CounterVec
	rollbacks            *prometheus.CounterVec
}

var (
	commerceOnce     sync.Once
	commerceRegistry *CommerceMetrics
)

// Commerce returns the process-wide commerce metrics registry.
func Commerce() *CommerceMetrics {
	commerceOnce.Do(func() {
		commerceRegistry = &CommerceMetrics{
			purchasesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "commerce_purchases_completed_total",
				Help: "Count of fully committed purchase units.",
			}),
			purchaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "commerce_purchase_failures_total",
				Help: "Count of rejected purchase units by reason.",
			}, []string{"reason"}),
			pointsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "commerce_points_redeemed_total",
				Help: "Total loyalty points burned via redemption.",
			}),
			discountsGranted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "commerce_discounts_granted_total",
				Help: "Count of pending discounts bought with points.",
			}),
			discountsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "commerce_discounts_consumed_total",
				Help: "Count of discounts consumed by purchases.",
			}),
			membershipsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "commerce_memberships_cancelled_total",
				Help: "Count of cancelled memberships.",
			}),
			tierUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "commerce_tier_updates_total",
				Help: "Count of tier changes by resulting tier.",
			}, []string{"tier"}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "commerce_unit_rollbacks_total",
				Help: "Count of rolled back operation units by operation.",
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			commerceRegistry.purchasesCompleted,
			commerceRegistry.purchaseFailures,
			commerceRegistry.pointsRedeemed,
			commerceRegistry.discountsGranted,
			commerceRegistry.discountsConsumed,
			commerceRegistry.membershipsCancelled,
			commerceRegistry.tierUpdates,
			commerceRegistry.rollbacks,
		)
	})
	return commerceRegistry
}

// PurchaseCompleted records a committed purchase unit.
func (m *CommerceMetrics) PurchaseCompleted() {
	if m == nil {
		return
	}
	m.purchasesCompleted.Inc()
}

// PurchaseFailed records a rejected purchase unit.
func (m *CommerceMetrics) PurchaseFailed(reason string) {
	if m == nil {
		return
	}
	m.purchaseFailures.WithLabelValues(reason).Inc()
}

// PointsRedeemed records burned points.
func (m *CommerceMetrics) PointsRedeemed(amount uint64) {
	if m == nil {
		return
	}
	m.pointsRedeemed.Add(float64(amount))
}

// DiscountGranted records a pending discount purchase.
func (m *CommerceMetrics) DiscountGranted() {
	if m == nil {
		return
	}
	m.discountsGranted.Inc()
}

// DiscountConsumed records a discount consumed by a purchase.
func (m *CommerceMetrics) DiscountConsumed() {
	if m == nil {
		return
	}
	m.discountsConsumed.Inc()
}

// MembershipCancelled records a cancelled membership.
func (m *CommerceMetrics) MembershipCancelled() {
	if m == nil {
		return
	}
	m.membershipsCancelled.Inc()
}

// TierUpdated records a tier change.
func (m *CommerceMetrics) TierUpdated(label string) {
	if m == nil {
		return
	}
	m.tierUpdates.WithLabelValues(label).Inc()
}

// UnitRolledBack records a failed, rolled back operation unit.
func (m *CommerceMetrics) UnitRolledBack(op string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(op).Inc()
}
