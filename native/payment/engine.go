package payment

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"memberchain/core/events"
	"memberchain/core/types"
)

// ModuleName identifies the escrow in state.
const ModuleName = "payment"

const sellerKey = "payment/seller"

const bpsDenominator = 10_000

// ModuleAddress returns the well-known identity the escrow presents when
// invoking the loyalty ledger.
func ModuleAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("module/"+ModuleName))[12:])
	return addr
}

// Catalog is the slice of the product catalog the escrow owns and exposes.
type Catalog interface {
	AddProduct(caller [20]byte, name, description string, priceWei *big.Int) (uint64, error)
	GetProduct(id uint64) (*types.Product, error)
	ProductCount() (uint64, error)
	SetProductActive(caller [20]byte, id uint64, active bool) error
}

// LoyaltyInvoker is the slice of the loyalty ledger the escrow invokes
// during a purchase unit.
type LoyaltyInvoker interface {
	ConsumeDiscount(caller, account [20]byte) (uint32, error)
	RecordPurchase(caller, account [20]byte, points, xp uint64) error
}

type escrowState interface {
	IsOwner(caller [20]byte) bool
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	ModulePrincipal(module string) ([20]byte, bool, error)
	SetModulePrincipal(module string, addr [20]byte) error
}

// Engine orchestrates the atomic purchase and cancellation flow. It owns the
// purchase/active-membership slice of the account ledger and the product
// catalog, and is the only caller the loyalty ledger accepts rewards from.
//
// Ordering inside a purchase follows checks-effects-interactions: every
// internal write lands before the value transfer to the seller, so a
// re-entrant call triggered by the transfer observes fully-updated state.
type Engine struct {
	st      escrowState
	catalog Catalog
	loyalty LoyaltyInvoker
	policy  RewardPolicy
	emitter events.Emitter
}

// NewEngine creates a payment engine with the default reward policy and a
// no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		policy:  DefaultRewardPolicy(),
		emitter: events.NoopEmitter{},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st escrowState) { e.st = st }

// SetCatalog wires the product catalog owned by the escrow.
func (e *Engine) SetCatalog(c Catalog) { e.catalog = c }

// SetLoyalty wires the loyalty ledger invoked after the local purchase state
// commits.
func (e *Engine) SetLoyalty(l LoyaltyInvoker) { e.loyalty = l }

// SetRewardPolicy overrides the price-to-reward mapping. Passing nil resets
// the stock policy.
func (e *Engine) SetRewardPolicy(policy RewardPolicy) {
	if policy == nil {
		e.policy = DefaultRewardPolicy()
		return
	}
	e.policy = policy
}

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

// SetSeller stores the recipient of purchase payments. Owner-only and
// idempotent; intended for bring-up.
func (e *Engine) SetSeller(caller, seller [20]byte) error {
	if !e.st.IsOwner(caller) {
		return ErrUnauthorized
	}
	return e.st.SetModulePrincipal(sellerKey, seller)
}

// Seller returns the configured payment recipient.
func (e *Engine) Seller() ([20]byte, bool, error) {
	return e.st.ModulePrincipal(sellerKey)
}

// AddProduct registers a catalog entry through the escrow-owned catalog.
func (e *Engine) AddProduct(caller [20]byte, name, description string, priceWei *big.Int) (uint64, error) {
	return e.catalog.AddProduct(caller, name, description, priceWei)
}

// GetProduct retrieves a catalog entry by id.
func (e *Engine) GetProduct(id uint64) (*types.Product, error) {
	return e.catalog.GetProduct(id)
}

// ProductCount returns the number of catalog entries.
func (e *Engine) ProductCount() (uint64, error) {
	return e.catalog.ProductCount()
}

// SetProductActive toggles a catalog entry's availability.
func (e *Engine) SetProductActive(caller [20]byte, id uint64, active bool) error {
	return e.catalog.SetProductActive(caller, id, active)
}

// EffectivePrice applies the discount in basis points to the list price with
// truncating integer division.
func EffectivePrice(priceWei *big.Int, discountBps uint32) *big.Int {
	if priceWei == nil {
		return big.NewInt(0)
	}
	price := new(big.Int).Mul(priceWei, big.NewInt(int64(bpsDenominator-discountBps)))
	return price.Quo(price, big.NewInt(bpsDenominator))
}

// PurchaseProduct runs the full purchase unit for the buyer: it validates
// the product, consumes any pending discount, verifies the exact payment,
// commits the membership state, records rewards through the loyalty ledger
// and finally transfers the paid amount to the seller. The caller is
// expected to run the unit atomically and roll every write back on error.
func (e *Engine) PurchaseProduct(buyer [20]byte, productID uint64, paidWei *big.Int) error {
	if e.loyalty == nil {
		return ErrLoyaltyNotWired
	}
	product, err := e.catalog.GetProduct(productID)
	if err != nil {
		return fmt.Errorf("%w: id %d", ErrInvalidProduct, productID)
	}
	if !product.Active {
		return fmt.Errorf("%w: id %d inactive", ErrInvalidProduct, productID)
	}
	acc, err := e.st.GetAccount(buyer[:])
	if err != nil {
		return err
	}
	if acc.ActiveMembership == productID {
		return fmt.Errorf("%w: product %d", ErrMembershipAlreadyActive, productID)
	}

	// Read-then-clear in the same unit; a failed purchase rolls the
	// discount back with everything else.
	discountBps, err := e.loyalty.ConsumeDiscount(ModuleAddress(), buyer)
	if err != nil {
		return err
	}

	effective := EffectivePrice(product.PriceWei, discountBps)
	if paidWei == nil || paidWei.Cmp(effective) != 0 {
		return fmt.Errorf("%w: want %s", ErrIncorrectPayment, effective)
	}

	// Local membership state commits before any further interaction.
	acc, err = e.st.GetAccount(buyer[:])
	if err != nil {
		return err
	}
	acc.AddPurchased(productID)
	acc.ActiveMembership = productID
	if err := e.st.PutAccount(buyer[:], acc); err != nil {
		return err
	}

	points, xp := e.policy.RewardsFor(effective)
	if err := e.loyalty.RecordPurchase(ModuleAddress(), buyer, points, xp); err != nil {
		return err
	}

	// Value transfer to the seller is the last step of the unit.
	if err := e.transfer(buyer, paidWei); err != nil {
		return err
	}

	e.emit(events.PurchaseCompleted{
		Buyer:        buyer,
		ProductID:    productID,
		PaidWei:      new(big.Int).Set(paidWei),
		DiscountBps:  discountBps,
		PointsIssued: points,
		XPIssued:     xp,
	})
	return nil
}

func (e *Engine) transfer(buyer [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	seller, ok, err := e.Seller()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSellerNotConfigured
	}
	buyerAcc, err := e.st.GetAccount(buyer[:])
	if err != nil {
		return err
	}
	if buyerAcc.BalanceWei.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, buyerAcc.BalanceWei, amount)
	}
	sellerAcc, err := e.st.GetAccount(seller[:])
	if err != nil {
		return err
	}
	buyerAcc.BalanceWei = new(big.Int).Sub(buyerAcc.BalanceWei, amount)
	sellerAcc.BalanceWei = new(big.Int).Add(sellerAcc.BalanceWei, amount)
	if err := e.st.PutAccount(buyer[:], buyerAcc); err != nil {
		return err
	}
	return e.st.PutAccount(seller[:], sellerAcc)
}

// CancelMembership clears the buyer's active membership and releases the
// product for a future re-purchase. Points and xp issued for the original
// purchase are not reversed.
func (e *Engine) CancelMembership(buyer [20]byte) error {
	acc, err := e.st.GetAccount(buyer[:])
	if err != nil {
		return err
	}
	if acc.ActiveMembership == 0 {
		return ErrNoActiveMembership
	}
	productID := acc.ActiveMembership
	acc.ActiveMembership = 0
	acc.RemovePurchased(productID)
	if err := e.st.PutAccount(buyer[:], acc); err != nil {
		return err
	}
	e.emit(events.MembershipCancelled{Buyer: buyer, ProductID: productID})
	return nil
}

// ActiveMembershipOf returns the buyer's active membership product id, 0
// when none.
func (e *Engine) ActiveMembershipOf(addr [20]byte) (uint64, error) {
	acc, err := e.st.GetAccount(addr[:])
	if err != nil {
		return 0, err
	}
	return acc.ActiveMembership, nil
}

// HasPurchased reports whether the address currently holds the product.
func (e *Engine) HasPurchased(addr [20]byte, productID uint64) (bool, error) {
	acc, err := e.st.GetAccount(addr[:])
	if err != nil {
		return false, err
	}
	return acc.HasPurchased(productID), nil
}
