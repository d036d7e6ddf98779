package catalog

import (
	"errors"
	"math/big"
	"testing"

	"memberchain/core/types"
)

type mockState struct {
	owner    [20]byte
	products map[uint64]*types.Product
	count    uint64
}

func newMockState(owner [20]byte) *mockState {
	return &mockState{owner: owner, products: make(map[uint64]*types.Product)}
}

func (m *mockState) IsOwner(caller [20]byte) bool { return caller == m.owner }

func (m *mockState) ProductGet(id uint64) (*types.Product, bool, error) {
	product, ok := m.products[id]
	if !ok {
		return nil, false, nil
	}
	return product.Clone(), true, nil
}

func (m *mockState) ProductPut(product *types.Product) error {
	m.products[product.ID] = product.Clone()
	return nil
}

func (m *mockState) ProductCount() (uint64, error) { return m.count, nil }

func (m *mockState) SetProductCount(count uint64) error {
	m.count = count
	return nil
}

func newTestEngine(owner [20]byte) (*Engine, *mockState) {
	st := newMockState(owner)
	engine := NewEngine()
	engine.SetState(st)
	return engine, st
}

func addrWith(last byte) [20]byte {
	var addr [20]byte
	addr[19] = last
	return addr
}

func TestAddProductSequentialIDs(t *testing.T) {
	owner := addrWith(0x01)
	engine, st := newTestEngine(owner)

	first, err := engine.AddProduct(owner, "Basic", "entry tier", big.NewInt(1000))
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	second, err := engine.AddProduct(owner, "Premium", "", big.NewInt(5000))
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
	if st.count != 2 {
		t.Fatalf("expected count 2, got %d", st.count)
	}

	product, err := engine.GetProduct(first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if product.Name != "Basic" || product.Description != "entry tier" || !product.Active {
		t.Fatalf("unexpected product %+v", product)
	}
}

func TestAddProductValidation(t *testing.T) {
	owner := addrWith(0x01)
	engine, _ := newTestEngine(owner)

	if _, err := engine.AddProduct(addrWith(0x02), "Basic", "", big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := engine.AddProduct(owner, "   ", "", big.NewInt(1)); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected invalid product for blank name, got %v", err)
	}
	if _, err := engine.AddProduct(owner, "Basic", "", nil); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected invalid product for nil price, got %v", err)
	}
	if _, err := engine.AddProduct(owner, "Basic", "", big.NewInt(-1)); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected invalid product for negative price, got %v", err)
	}
	// Zero-priced entries are allowed.
	if _, err := engine.AddProduct(owner, "Free", "", big.NewInt(0)); err != nil {
		t.Fatalf("expected free product to be accepted, got %v", err)
	}
}

func TestGetProductMissing(t *testing.T) {
	engine, _ := newTestEngine(addrWith(0x01))
	if _, err := engine.GetProduct(0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for id 0, got %v", err)
	}
	if _, err := engine.GetProduct(7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetProductActive(t *testing.T) {
	owner := addrWith(0x01)
	engine, st := newTestEngine(owner)

	id, err := engine.AddProduct(owner, "Basic", "", big.NewInt(1000))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := engine.SetProductActive(addrWith(0x02), id, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.SetProductActive(owner, 42, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := engine.SetProductActive(owner, id, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if st.products[id].Active {
		t.Fatalf("expected product inactive")
	}
	// Setting the same flag again is a no-op.
	if err := engine.SetProductActive(owner, id, false); err != nil {
		t.Fatalf("repeat deactivate: %v", err)
	}
	if err := engine.SetProductActive(owner, id, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if !st.products[id].Active {
		t.Fatalf("expected product active")
	}
}

func TestGetProductReturnsCopy(t *testing.T) {
	owner := addrWith(0x01)
	engine, st := newTestEngine(owner)

	id, err := engine.AddProduct(owner, "Basic", "", big.NewInt(1000))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	product, err := engine.GetProduct(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	product.PriceWei.SetInt64(1)
	product.Active = false

	if st.products[id].PriceWei.Cmp(big.NewInt(1000)) != 0 || !st.products[id].Active {
		t.Fatalf("stored product mutated through returned copy")
	}
}
