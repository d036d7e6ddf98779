package catalog

import (
	"fmt"
	"math/big"
	"strings"

	"memberchain/core/events"
	"memberchain/core/types"
)

type catalogState interface {
	IsOwner(caller [20]byte) bool
	ProductGet(id uint64) (*types.Product, bool, error)
	ProductPut(product *types.Product) error
	ProductCount() (uint64, error)
	SetProductCount(count uint64) error
}

// Engine manages the append-only product catalog. Ids are sequential
// starting at 1 and records are never deleted; only the Active flag is
// mutable after creation.
type Engine struct {
	st      catalogState
	emitter events.Emitter
}

// NewEngine creates a catalog engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st catalogState) { e.st = st }

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

// AddProduct registers a new catalog entry and returns its id. Only the
// ledger owner may add products.
func (e *Engine) AddProduct(caller [20]byte, name, description string, priceWei *big.Int) (uint64, error) {
	if !e.st.IsOwner(caller) {
		return 0, ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	if priceWei == nil || priceWei.Sign() < 0 {
		return 0, fmt.Errorf("%w: price must be non-negative", ErrInvalidProduct)
	}
	count, err := e.st.ProductCount()
	if err != nil {
		return 0, err
	}
	id := count + 1
	product := &types.Product{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		PriceWei:    new(big.Int).Set(priceWei),
		Active:      true,
	}
	if err := e.st.ProductPut(product); err != nil {
		return 0, err
	}
	if err := e.st.SetProductCount(id); err != nil {
		return 0, err
	}
	e.emit(events.ProductAdded{ID: id, Name: name, PriceWei: new(big.Int).Set(priceWei)})
	return id, nil
}

// GetProduct retrieves a catalog entry by id.
func (e *Engine) GetProduct(id uint64) (*types.Product, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	product, ok, err := e.st.ProductGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return product.Clone(), nil
}

// ProductCount returns the number of registered catalog entries.
func (e *Engine) ProductCount() (uint64, error) {
	return e.st.ProductCount()
}

// SetProductActive flips the only mutable product field. Only the ledger
// owner may change it.
func (e *Engine) SetProductActive(caller [20]byte, id uint64, active bool) error {
	if !e.st.IsOwner(caller) {
		return ErrUnauthorized
	}
	product, ok, err := e.st.ProductGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if product.Active == active {
		return nil
	}
	product.Active = active
	return e.st.ProductPut(product)
}
