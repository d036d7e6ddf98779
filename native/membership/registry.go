package membership

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"memberchain/core/events"
	"memberchain/core/types"
)

// ModuleName identifies the registry in state. The single authorized caller
// (the loyalty ledger) is stored under this name.
const ModuleName = "membership"

// ModuleAddress returns the well-known identity the registry presents when
// it is addressed by other components.
func ModuleAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("module/"+ModuleName))[12:])
	return addr
}

type registryState interface {
	IsOwner(caller [20]byte) bool
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	ModulePrincipal(module string) ([20]byte, bool, error)
	SetModulePrincipal(module string, addr [20]byte) error
}

// Registry owns the per-account tier. Updates are accepted only from the
// configured loyalty ledger principal and recompute the tier from the
// cumulative counters on every call.
type Registry struct {
	st      registryState
	emitter events.Emitter
}

// NewRegistry creates a membership registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(st registryState) { r.st = st }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(event events.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(event)
}

// SetLoyaltyContract stores the loyalty ledger as the registry's single
// authorized caller. Owner-only and idempotent; intended for bring-up, not
// steady-state traffic.
func (r *Registry) SetLoyaltyContract(caller, loyaltyAddr [20]byte) error {
	if !r.st.IsOwner(caller) {
		return ErrUnauthorized
	}
	return r.st.SetModulePrincipal(ModuleName, loyaltyAddr)
}

// UpdateMembership recomputes the account's tier from the supplied cumulative
// counters. Only the configured loyalty principal may call it.
func (r *Registry) UpdateMembership(caller, account [20]byte, totalXP, totalPurchases uint64) error {
	principal, ok, err := r.st.ModulePrincipal(ModuleName)
	if err != nil {
		return err
	}
	if !ok || principal != caller {
		return ErrUnauthorized
	}
	acc, err := r.st.GetAccount(account[:])
	if err != nil {
		return err
	}
	tier := TierFor(totalXP, totalPurchases)
	changed := acc.Tier != uint8(tier)
	acc.Tier = uint8(tier)
	if err := r.st.PutAccount(account[:], acc); err != nil {
		return err
	}
	if changed {
		r.emit(events.TierUpdated{
			Account:        account,
			Tier:           uint8(tier),
			TierLabel:      tier.Label(),
			TotalXP:        totalXP,
			TotalPurchases: totalPurchases,
		})
	}
	return nil
}

// TierOf returns the account's current tier.
func (r *Registry) TierOf(account [20]byte) (Tier, error) {
	acc, err := r.st.GetAccount(account[:])
	if err != nil {
		return TierNone, err
	}
	return Tier(acc.Tier), nil
}

// TierLabel returns the human-readable name of the account's current tier.
func (r *Registry) TierLabel(account [20]byte) (string, error) {
	tier, err := r.TierOf(account)
	if err != nil {
		return "", err
	}
	return tier.Label(), nil
}
