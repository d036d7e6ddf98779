package loyalty

import (
	"fmt"
	"math"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"memberchain/core/events"
	"memberchain/core/types"
)

// ModuleName identifies the ledger in state. The single authorized caller
// (the payment escrow) is stored under this name; the membership registry
// target is stored under membershipTargetKey.
const ModuleName = "loyalty"

const membershipTargetKey = "loyalty/membership-target"

// Discount pricing: a discount of bps basis points costs bps*3/100 points
// (1000 bps costs 30 points).
const (
	discountCostNumerator   = 3
	discountCostDenominator = 100
	maxDiscountBps          = 10_000
)

// ModuleAddress returns the well-known identity the ledger presents when
// invoking the membership registry.
func ModuleAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("module/"+ModuleName))[12:])
	return addr
}

// MembershipInvoker is the slice of the membership registry the ledger needs
// to push recomputed counters into.
type MembershipInvoker interface {
	UpdateMembership(caller, account [20]byte, totalXP, totalPurchases uint64) error
}

type ledgerState interface {
	IsOwner(caller [20]byte) bool
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	ModulePrincipal(module string) ([20]byte, bool, error)
	SetModulePrincipal(module string, addr [20]byte) error
}

// Engine owns the points, xp and discount slice of the account ledger.
// Reward accrual is accepted only from the configured payment principal and
// forwards the fresh cumulative counters to the membership registry within
// the same atomic unit.
type Engine struct {
	st         ledgerState
	emitter    events.Emitter
	membership MembershipInvoker
}

// NewEngine creates a loyalty engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st ledgerState) { e.st = st }

// SetMembership wires the membership registry invoked after reward accrual.
func (e *Engine) SetMembership(invoker MembershipInvoker) { e.membership = invoker }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

// SetPaymentContract stores the payment escrow as the ledger's single
// authorized caller. Owner-only and idempotent; bring-up may repeat it with
// the same or a corrected address.
func (e *Engine) SetPaymentContract(caller, paymentAddr [20]byte) error {
	if !e.st.IsOwner(caller) {
		return ErrUnauthorized
	}
	return e.st.SetModulePrincipal(ModuleName, paymentAddr)
}

// SetMembershipContract stores the membership registry the ledger reports
// to. Owner-only and idempotent.
func (e *Engine) SetMembershipContract(caller, membershipAddr [20]byte) error {
	if !e.st.IsOwner(caller) {
		return ErrUnauthorized
	}
	return e.st.SetModulePrincipal(membershipTargetKey, membershipAddr)
}

func (e *Engine) requirePaymentCaller(caller [20]byte) error {
	principal, ok, err := e.st.ModulePrincipal(ModuleName)
	if err != nil {
		return err
	}
	if !ok || principal != caller {
		return ErrUnauthorized
	}
	return nil
}

// RecordPurchase credits points and xp, bumps the purchase counter and
// pushes the fresh totals into the membership registry. Only the configured
// payment principal may call it; the counters are monotonic and never
// reversed by cancellations.
func (e *Engine) RecordPurchase(caller, account [20]byte, points, xp uint64) error {
	if err := e.requirePaymentCaller(caller); err != nil {
		return err
	}
	if _, ok, err := e.st.ModulePrincipal(membershipTargetKey); err != nil {
		return err
	} else if !ok {
		return ErrMembershipNotWired
	}
	if e.membership == nil {
		return ErrMembershipNotWired
	}
	acc, err := e.st.GetAccount(account[:])
	if err != nil {
		return err
	}
	if acc.PointsBalance > math.MaxUint64-points {
		return fmt.Errorf("loyalty: points balance overflow")
	}
	if acc.XP > math.MaxUint64-xp {
		return fmt.Errorf("loyalty: xp overflow")
	}
	acc.PointsBalance += points
	acc.XP += xp
	acc.PurchaseCount++
	if err := e.st.PutAccount(account[:], acc); err != nil {
		return err
	}
	return e.membership.UpdateMembership(ModuleAddress(), account, acc.XP, acc.PurchaseCount)
}

// Redeem burns points from the caller's own balance.
func (e *Engine) Redeem(caller [20]byte, amount uint64) error {
	acc, err := e.st.GetAccount(caller[:])
	if err != nil {
		return err
	}
	if amount > acc.PointsBalance {
		return fmt.Errorf("%w: have %d, want %d", ErrInsufficientPoints, acc.PointsBalance, amount)
	}
	acc.PointsBalance -= amount
	if err := e.st.PutAccount(caller[:], acc); err != nil {
		return err
	}
	e.emit(events.PointsRedeemed{Account: caller, Amount: amount, Balance: acc.PointsBalance})
	return nil
}

// RedeemDiscount converts points into a pending discount on the caller's
// next purchase. At most one discount may be outstanding per account.
func (e *Engine) RedeemDiscount(caller [20]byte, bps uint32) error {
	if bps == 0 || bps > maxDiscountBps {
		return fmt.Errorf("%w: %d bps out of range", ErrInvalidDiscount, bps)
	}
	acc, err := e.st.GetAccount(caller[:])
	if err != nil {
		return err
	}
	if acc.DiscountBps != 0 {
		return ErrDiscountAlreadyActive
	}
	cost := uint64(bps) * discountCostNumerator / discountCostDenominator
	if cost > acc.PointsBalance {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientPoints, acc.PointsBalance, cost)
	}
	acc.PointsBalance -= cost
	acc.DiscountBps = bps
	if err := e.st.PutAccount(caller[:], acc); err != nil {
		return err
	}
	e.emit(events.DiscountGranted{Account: caller, Bps: bps, PointsCost: cost})
	return nil
}

// ConsumeDiscount returns the account's pending discount and clears it in
// the same read. Only the configured payment principal may call it, and only
// inside a purchase unit; there is no standalone consumption path.
func (e *Engine) ConsumeDiscount(caller, account [20]byte) (uint32, error) {
	if err := e.requirePaymentCaller(caller); err != nil {
		return 0, err
	}
	acc, err := e.st.GetAccount(account[:])
	if err != nil {
		return 0, err
	}
	bps := acc.DiscountBps
	if bps == 0 {
		return 0, nil
	}
	acc.DiscountBps = 0
	if err := e.st.PutAccount(account[:], acc); err != nil {
		return 0, err
	}
	e.emit(events.DiscountConsumed{Account: account, Bps: bps})
	return bps, nil
}

// BalanceOf returns the account's point balance.
func (e *Engine) BalanceOf(account [20]byte) (uint64, error) {
	acc, err := e.st.GetAccount(account[:])
	if err != nil {
		return 0, err
	}
	return acc.PointsBalance, nil
}

// XPOf returns the account's cumulative experience.
func (e *Engine) XPOf(account [20]byte) (uint64, error) {
	acc, err := e.st.GetAccount(account[:])
	if err != nil {
		return 0, err
	}
	return acc.XP, nil
}

// PurchasesOf returns the account's cumulative purchase count.
func (e *Engine) PurchasesOf(account [20]byte) (uint64, error) {
	acc, err := e.st.GetAccount(account[:])
	if err != nil {
		return 0, err
	}
	return acc.PurchaseCount, nil
}

// DiscountBpsOf returns the account's pending discount, 0 when none.
func (e *Engine) DiscountBpsOf(account [20]byte) (uint32, error) {
	acc, err := e.st.GetAccount(account[:])
	if err != nil {
		return 0, err
	}
	return acc.DiscountBps, nil
}
