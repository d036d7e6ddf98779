package state

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"memberchain/core/types"
	"memberchain/storage/trie"
)

// Manager provides typed access to the ledger state stored in the trie.
// Values are RLP encoded and keys keccak-hashed before insertion, matching
// the trie's expectations. A Manager is cheap to construct; operations build
// a fresh one over the live trie per atomic unit.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

var (
	accountPrefix   = []byte("account:")
	productPrefix   = []byte("product:")
	productCountKey = ethcrypto.Keccak256([]byte("product-count"))
	ownerKey        = ethcrypto.Keccak256([]byte("ledger-owner"))
	principalPrefix = []byte("principal:")
)

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func productKey(id uint64) []byte {
	buf := append([]byte(nil), productPrefix...)
	buf = append(buf, fmt.Sprintf("%d", id)...)
	return ethcrypto.Keccak256(buf)
}

func principalKey(module string) []byte {
	buf := make([]byte, len(principalPrefix)+len(module))
	copy(buf, principalPrefix)
	copy(buf[len(principalPrefix):], module)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 to match the requirements
// of the underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it
// into the provided destination. The boolean return value indicates whether
// the key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// GetAccount loads the canonical account record for the address. Missing
// accounts materialise as zero-valued records so components never observe a
// nil ledger entry.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.trie.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return account.EnsureDefaults(), nil
}

// PutAccount persists the canonical account record for the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	encoded, err := rlp.EncodeToBytes(account.EnsureDefaults())
	if err != nil {
		return err
	}
	return m.trie.Update(accountKey(addr), encoded)
}

// Owner returns the configured ledger owner address. The boolean reports
// whether bring-up has stored one yet.
func (m *Manager) Owner() ([20]byte, bool, error) {
	var addr [20]byte
	data, err := m.trie.Get(ownerKey)
	if err != nil {
		return addr, false, err
	}
	if len(data) != len(addr) {
		return addr, false, nil
	}
	copy(addr[:], data)
	return addr, true, nil
}

// SetOwner stores the ledger owner address.
func (m *Manager) SetOwner(addr [20]byte) error {
	return m.trie.Update(ownerKey, addr[:])
}

// IsOwner reports whether the caller matches the stored owner.
func (m *Manager) IsOwner(caller [20]byte) bool {
	owner, ok, err := m.Owner()
	if err != nil || !ok {
		return false
	}
	return owner == caller
}

// ModulePrincipal returns the single authorized caller configured for the
// named module.
func (m *Manager) ModulePrincipal(module string) ([20]byte, bool, error) {
	var addr [20]byte
	normalized := strings.ToLower(strings.TrimSpace(module))
	if normalized == "" {
		return addr, false, fmt.Errorf("state: module name must not be empty")
	}
	data, err := m.trie.Get(principalKey(normalized))
	if err != nil {
		return addr, false, err
	}
	if len(data) != len(addr) {
		return addr, false, nil
	}
	copy(addr[:], data)
	return addr, true, nil
}

// SetModulePrincipal stores the authorized caller for the named module. The
// write is idempotent; bring-up may repeat it with the same or a corrected
// address.
func (m *Manager) SetModulePrincipal(module string, addr [20]byte) error {
	normalized := strings.ToLower(strings.TrimSpace(module))
	if normalized == "" {
		return fmt.Errorf("state: module name must not be empty")
	}
	return m.trie.Update(principalKey(normalized), addr[:])
}

// ProductGet retrieves a catalog entry by id.
func (m *Manager) ProductGet(id uint64) (*types.Product, bool, error) {
	data, err := m.trie.Get(productKey(id))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	product := new(types.Product)
	if err := rlp.DecodeBytes(data, product); err != nil {
		return nil, false, fmt.Errorf("state: decode product: %w", err)
	}
	return product, true, nil
}

// ProductPut persists a catalog entry.
func (m *Manager) ProductPut(product *types.Product) error {
	if product == nil {
		return fmt.Errorf("state: nil product")
	}
	encoded, err := rlp.EncodeToBytes(product.Clone())
	if err != nil {
		return err
	}
	return m.trie.Update(productKey(product.ID), encoded)
}

// ProductCount returns the number of catalog entries.
func (m *Manager) ProductCount() (uint64, error) {
	data, err := m.trie.Get(productCountKey)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, fmt.Errorf("state: decode product count: %w", err)
	}
	return count, nil
}

// SetProductCount stores the number of catalog entries.
func (m *Manager) SetProductCount(count uint64) error {
	encoded, err := rlp.EncodeToBytes(count)
	if err != nil {
		return err
	}
	return m.trie.Update(productCountKey, encoded)
}
