package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"memberchain/core/events"
	"memberchain/core/state"
	"memberchain/core/types"
	"memberchain/native/catalog"
	"memberchain/native/loyalty"
	"memberchain/native/membership"
	"memberchain/native/payment"
	"memberchain/observability/metrics"
	"memberchain/storage"
	"memberchain/storage/trie"
)

var (
	stateRootKey    = []byte("memberchain/state-root")
	stateVersionKey = []byte("memberchain/state-version")
)

// Node is the central controller wiring the four ledger components together.
// Every public operation executes as one atomic unit: state mutations run
// speculatively against the live trie and are either committed as a new root
// or discarded by resetting the trie to the last committed root. The
// external execution environment (here: the per-node mutex plus trie
// commit/reset) provides the total-order, all-or-nothing semantics the
// components assume.
type Node struct {
	db      storage.Database
	trie    *trie.Trie
	root    common.Hash
	version uint64

	mu      sync.Mutex
	logger  *slog.Logger
	emitter events.Emitter
	pending []events.Event
	policy  payment.RewardPolicy
	metrics *metrics.CommerceMetrics
}

// NewNode opens the ledger over the provided database, restoring the last
// committed state root when one exists. The owner address is stored on first
// bring-up and gates every owner-only operation afterwards.
func NewNode(db storage.Database, owner [20]byte) (*Node, error) {
	var root []byte
	if ok, err := db.Has(stateRootKey); err == nil && ok {
		stored, err := db.Get(stateRootKey)
		if err != nil {
			return nil, fmt.Errorf("core: load state root: %w", err)
		}
		root = stored
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	n := &Node{
		db:      db,
		trie:    stateTrie,
		root:    stateTrie.Root(),
		logger:  slog.Default(),
		emitter: events.NoopEmitter{},
		policy:  payment.DefaultRewardPolicy(),
		metrics: metrics.Commerce(),
	}
	if ok, err := db.Has(stateVersionKey); err == nil && ok {
		data, err := db.Get(stateVersionKey)
		if err != nil {
			return nil, fmt.Errorf("core: load state version: %w", err)
		}
		if len(data) == 8 {
			n.version = binary.BigEndian.Uint64(data)
		}
	}
	if err := n.ensureOwner(owner); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) ensureOwner(owner [20]byte) error {
	manager := state.NewManager(n.trie)
	if _, ok, err := manager.Owner(); err != nil {
		return err
	} else if ok {
		return nil
	}
	if owner == ([20]byte{}) {
		return fmt.Errorf("core: owner address required for first bring-up")
	}
	if err := manager.SetOwner(owner); err != nil {
		return err
	}
	return n.commitLocked("bring-up")
}

// SetLogger overrides the node logger. Passing nil restores the default.
func (n *Node) SetLogger(logger *slog.Logger) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if logger == nil {
		n.logger = slog.Default()
		return
	}
	n.logger = logger
}

// SetEmitter configures the downstream event emitter. Buffered events of an
// operation are flushed to it only after its unit commits.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetRewardPolicy overrides the price-to-reward mapping used for purchases.
func (n *Node) SetRewardPolicy(policy payment.RewardPolicy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.policy = policy
}

// StateRoot returns the last committed state root.
func (n *Node) StateRoot() common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.root
}

// bufferingEmitter collects engine events during a unit so they can be
// dropped wholesale when the unit rolls back.
type bufferingEmitter struct {
	node *Node
}

func (b bufferingEmitter) Emit(evt events.Event) {
	if b.node == nil || evt == nil {
		return
	}
	b.node.pending = append(b.node.pending, evt)
}

func (n *Node) newEngines(manager *state.Manager) (*payment.Engine, *loyalty.Engine, *membership.Registry, *catalog.Engine) {
	emitter := bufferingEmitter{node: n}

	catalogEngine := catalog.NewEngine()
	catalogEngine.SetState(manager)
	catalogEngine.SetEmitter(emitter)

	registry := membership.NewRegistry()
	registry.SetState(manager)
	registry.SetEmitter(emitter)

	ledger := loyalty.NewEngine()
	ledger.SetState(manager)
	ledger.SetMembership(registry)
	ledger.SetEmitter(emitter)

	escrow := payment.NewEngine()
	escrow.SetState(manager)
	escrow.SetCatalog(catalogEngine)
	escrow.SetLoyalty(ledger)
	escrow.SetRewardPolicy(n.policy)
	escrow.SetEmitter(emitter)

	return escrow, ledger, registry, catalogEngine
}

// execute runs fn as one atomic unit. On error every trie mutation is
// discarded by resetting to the last committed root and buffered events are
// dropped; on success the trie commits and events flush downstream.
func (n *Node) execute(op string, fn func(manager *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.pending = n.pending[:0]
	manager := state.NewManager(n.trie)
	if err := fn(manager); err != nil {
		if rerr := n.trie.Reset(n.root); rerr != nil {
			n.logger.Error("state rollback failed", slog.String("op", op), slog.Any("error", rerr))
		}
		n.pending = n.pending[:0]
		n.metrics.UnitRolledBack(op)
		n.logger.Warn("operation rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}
	if err := n.commitLocked(op); err != nil {
		return err
	}
	n.flushEvents()
	n.logger.Info("operation committed", slog.String("op", op), slog.String("root", n.root.Hex()))
	return nil
}

func (n *Node) commitLocked(op string) error {
	newRoot, err := n.trie.Commit(n.root, n.version+1)
	if err != nil {
		if rerr := n.trie.Reset(n.root); rerr != nil {
			n.logger.Error("state rollback failed", slog.String("op", op), slog.Any("error", rerr))
		}
		return fmt.Errorf("core: commit %s: %w", op, err)
	}
	n.root = newRoot
	n.version++
	if err := n.db.Put(stateRootKey, newRoot.Bytes()); err != nil {
		return fmt.Errorf("core: persist state root: %w", err)
	}
	versionBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(versionBytes, n.version)
	return n.db.Put(stateVersionKey, versionBytes)
}

func (n *Node) flushEvents() {
	for _, evt := range n.pending {
		switch typed := evt.(type) {
		case events.PurchaseCompleted:
			n.metrics.PurchaseCompleted()
		case events.PointsRedeemed:
			n.metrics.PointsRedeemed(typed.Amount)
		case events.DiscountGranted:
			n.metrics.DiscountGranted()
		case events.DiscountConsumed:
			n.metrics.DiscountConsumed()
		case events.MembershipCancelled:
			n.metrics.MembershipCancelled()
		case events.TierUpdated:
			n.metrics.TierUpdated(typed.TierLabel)
		}
		n.emitter.Emit(evt)
	}
	n.pending = n.pending[:0]
}

// view runs fn against the current committed state without committing.
func (n *Node) view(fn func(manager *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(state.NewManager(n.trie))
}

// --- Catalog surface ---

// AddProduct registers a catalog entry. Owner-only.
func (n *Node) AddProduct(caller [20]byte, name, description string, priceWei *big.Int) (uint64, error) {
	var id uint64
	err := n.execute("add_product", func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		newID, err := escrow.AddProduct(caller, name, description, priceWei)
		if err != nil {
			return err
		}
		id = newID
		return nil
	})
	return id, err
}

// GetProduct retrieves a catalog entry by id.
func (n *Node) GetProduct(id uint64) (*types.Product, error) {
	var product *types.Product
	err := n.view(func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		got, err := escrow.GetProduct(id)
		if err != nil {
			return err
		}
		product = got
		return nil
	})
	return product, err
}

// ProductCount returns the number of catalog entries.
func (n *Node) ProductCount() (uint64, error) {
	var count uint64
	err := n.view(func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		got, err := escrow.ProductCount()
		if err != nil {
			return err
		}
		count = got
		return nil
	})
	return count, err
}

// SetProductActive toggles a catalog entry's availability. Owner-only.
func (n *Node) SetProductActive(caller [20]byte, id uint64, active bool) error {
	return n.execute("set_product_active", func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		return escrow.SetProductActive(caller, id, active)
	})
}

// --- Purchase surface ---

// PurchaseProduct runs the full purchase unit for the buyer.
func (n *Node) PurchaseProduct(buyer [20]byte, productID uint64, paidWei *big.Int) error {
	err := n.execute("purchase_product", func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		return escrow.PurchaseProduct(buyer, productID, paidWei)
	})
	if err != nil {
		n.metrics.PurchaseFailed(failureReason(err))
	}
	return err
}

// CancelMembership clears the buyer's active membership. Issued points and
// xp are retained.
func (n *Node) CancelMembership(buyer [20]byte) error {
	return n.execute("cancel_membership", func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		return escrow.CancelMembership(buyer)
	})
}

// ActiveMembershipOf returns the address's active membership product id, 0
// when none.
func (n *Node) ActiveMembershipOf(addr [20]byte) (uint64, error) {
	var id uint64
	err := n.view(func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		got, err := escrow.ActiveMembershipOf(addr)
		if err != nil {
			return err
		}
		id = got
		return nil
	})
	return id, err
}

// HasPurchased reports whether the address currently holds the product.
func (n *Node) HasPurchased(addr [20]byte, productID uint64) (bool, error) {
	var held bool
	err := n.view(func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		got, err := escrow.HasPurchased(addr, productID)
		if err != nil {
			return err
		}
		held = got
		return nil
	})
	return held, err
}

// --- Loyalty surface ---

// Redeem burns points from the caller's balance.
func (n *Node) Redeem(caller [20]byte, amount uint64) error {
	return n.execute("redeem_points", func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		return ledger.Redeem(caller, amount)
	})
}

// RedeemDiscount converts the caller's points into a pending discount.
func (n *Node) RedeemDiscount(caller [20]byte, bps uint32) error {
	return n.execute("redeem_discount", func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		return ledger.RedeemDiscount(caller, bps)
	})
}

// DiscountBpsOf returns the address's pending discount, 0 when none.
func (n *Node) DiscountBpsOf(addr [20]byte) (uint32, error) {
	var bps uint32
	err := n.view(func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		got, err := ledger.DiscountBpsOf(addr)
		if err != nil {
			return err
		}
		bps = got
		return nil
	})
	return bps, err
}

// BalanceOf returns the address's loyalty point balance.
func (n *Node) BalanceOf(addr [20]byte) (uint64, error) {
	var balance uint64
	err := n.view(func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		got, err := ledger.BalanceOf(addr)
		if err != nil {
			return err
		}
		balance = got
		return nil
	})
	return balance, err
}

// XPOf returns the address's cumulative experience.
func (n *Node) XPOf(addr [20]byte) (uint64, error) {
	var xp uint64
	err := n.view(func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		got, err := ledger.XPOf(addr)
		if err != nil {
			return err
		}
		xp = got
		return nil
	})
	return xp, err
}

// PurchasesOf returns the address's cumulative purchase count.
func (n *Node) PurchasesOf(addr [20]byte) (uint64, error) {
	var purchases uint64
	err := n.view(func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		got, err := ledger.PurchasesOf(addr)
		if err != nil {
			return err
		}
		purchases = got
		return nil
	})
	return purchases, err
}

// --- Membership surface ---

// TierOf returns the address's current membership tier.
func (n *Node) TierOf(addr [20]byte) (membership.Tier, error) {
	var tier membership.Tier
	err := n.view(func(manager *state.Manager) error {
		_, _, registry, _ := n.newEngines(manager)
		got, err := registry.TierOf(addr)
		if err != nil {
			return err
		}
		tier = got
		return nil
	})
	return tier, err
}

// TierLabel returns the human-readable name of the address's tier.
func (n *Node) TierLabel(addr [20]byte) (string, error) {
	tier, err := n.TierOf(addr)
	if err != nil {
		return "", err
	}
	return tier.Label(), nil
}

// --- Bring-up configuration (owner-only, not steady-state traffic) ---

// SetPaymentContract stores the loyalty ledger's single authorized caller.
func (n *Node) SetPaymentContract(caller, paymentAddr [20]byte) error {
	return n.execute("set_payment_contract", func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		return ledger.SetPaymentContract(caller, paymentAddr)
	})
}

// SetMembershipContract stores the membership registry the loyalty ledger
// reports to.
func (n *Node) SetMembershipContract(caller, membershipAddr [20]byte) error {
	return n.execute("set_membership_contract", func(manager *state.Manager) error {
		_, ledger, _, _ := n.newEngines(manager)
		return ledger.SetMembershipContract(caller, membershipAddr)
	})
}

// SetLoyaltyContract stores the membership registry's single authorized
// caller.
func (n *Node) SetLoyaltyContract(caller, loyaltyAddr [20]byte) error {
	return n.execute("set_loyalty_contract", func(manager *state.Manager) error {
		_, _, registry, _ := n.newEngines(manager)
		return registry.SetLoyaltyContract(caller, loyaltyAddr)
	})
}

// SetSeller stores the recipient of purchase payments.
func (n *Node) SetSeller(caller, seller [20]byte) error {
	return n.execute("set_seller", func(manager *state.Manager) error {
		escrow, _, _, _ := n.newEngines(manager)
		return escrow.SetSeller(caller, seller)
	})
}

// Mint credits wei to an address. Owner-only bring-up operation standing in
// for the external balance source.
func (n *Node) Mint(caller, addr [20]byte, amountWei *big.Int) error {
	return n.execute("mint", func(manager *state.Manager) error {
		if !manager.IsOwner(caller) {
			return payment.ErrUnauthorized
		}
		if amountWei == nil || amountWei.Sign() <= 0 {
			return fmt.Errorf("core: mint amount must be positive")
		}
		acc, err := manager.GetAccount(addr[:])
		if err != nil {
			return err
		}
		acc.BalanceWei = new(big.Int).Add(acc.BalanceWei, amountWei)
		return manager.PutAccount(addr[:], acc)
	})
}

// BalanceWeiOf returns the address's wei balance.
func (n *Node) BalanceWeiOf(addr [20]byte) (*big.Int, error) {
	balance := big.NewInt(0)
	err := n.view(func(manager *state.Manager) error {
		acc, err := manager.GetAccount(addr[:])
		if err != nil {
			return err
		}
		balance = new(big.Int).Set(acc.BalanceWei)
		return nil
	})
	return balance, err
}

// Owner returns the configured ledger owner.
func (n *Node) Owner() ([20]byte, bool, error) {
	var owner [20]byte
	var ok bool
	err := n.view(func(manager *state.Manager) error {
		got, found, err := manager.Owner()
		if err != nil {
			return err
		}
		owner, ok = got, found
		return nil
	})
	return owner, ok, err
}

// failureReason maps a rejection to a stable metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, payment.ErrInvalidProduct):
		return "invalid_product"
	case errors.Is(err, payment.ErrMembershipAlreadyActive):
		return "membership_active"
	case errors.Is(err, payment.ErrIncorrectPayment):
		return "incorrect_payment"
	case errors.Is(err, payment.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, payment.ErrSellerNotConfigured):
		return "seller_unset"
	case errors.Is(err, payment.ErrUnauthorized),
		errors.Is(err, loyalty.ErrUnauthorized),
		errors.Is(err, membership.ErrUnauthorized),
		errors.Is(err, catalog.ErrUnauthorized):
		return "unauthorized"
	default:
		return "other"
	}
}
