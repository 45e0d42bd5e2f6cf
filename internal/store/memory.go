package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vendmx/vending-engine/internal/coins"
	"github.com/vendmx/vending-engine/internal/model"
)

// MemoryAccountStore implements AccountStore with an in-memory map. Used
// for testing and single-node development. Records are copied in and out
// so callers can never mutate shared state.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account // keyed by username
}

// NewMemoryAccountStore creates an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]*model.Account),
	}
}

func (s *MemoryAccountStore) Create(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.Username]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.Username)
	}

	cp := *a
	s.accounts[a.Username] = &cp
	return nil
}

func (s *MemoryAccountStore) Get(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: id %s", ErrAccountNotFound, id)
}

func (s *MemoryAccountStore) UpdatePassword(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	a.PasswordHash = passwordHash
	return nil
}

func (s *MemoryAccountStore) UpdateDeposit(_ context.Context, username string, delta int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	if a.Role != model.RoleBuyer {
		return nil, fmt.Errorf("%w: %s", ErrNotABuyer, username)
	}
	if a.Deposit+delta < 0 {
		return nil, fmt.Errorf("%w: deposit %d, delta %d", ErrInsufficientDeposit, a.Deposit, delta)
	}
	a.Deposit += delta

	cp := *a
	return &cp, nil
}

func (s *MemoryAccountStore) SetDeposit(_ context.Context, username string, value int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	if a.Role != model.RoleBuyer {
		return nil, fmt.Errorf("%w: %s", ErrNotABuyer, username)
	}
	if value < 0 {
		return nil, fmt.Errorf("%w: deposit cannot be set to %d", ErrInsufficientDeposit, value)
	}
	a.Deposit = value

	cp := *a
	return &cp, nil
}

func (s *MemoryAccountStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	delete(s.accounts, username)
	return nil
}

// MemoryProductStore implements ProductStore with an in-memory map.
type MemoryProductStore struct {
	mu       sync.RWMutex
	products map[string]*model.Product // keyed by id
}

// NewMemoryProductStore creates an empty in-memory product store.
func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{
		products: make(map[string]*model.Product),
	}
}

func (s *MemoryProductStore) Create(_ context.Context, p *model.Product) error {
	if err := ValidateProduct(p.Name, p.Cost, p.AmountAvailable, coins.Divisor); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.SellerID == p.SellerID && existing.Name == p.Name {
			return fmt.Errorf("%w: %s by seller %s", ErrProductExists, p.Name, p.SellerID)
		}
	}

	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryProductStore) Get(_ context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrProductNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryProductStore) GetByName(_ context.Context, name string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProductNotFound, name)
}

func (s *MemoryProductStore) UpdateCost(_ context.Context, sellerID, name string, cost int64) (*model.Product, error) {
	if cost <= 0 || cost%coins.Divisor != 0 {
		return nil, fmt.Errorf("%w: cost %d", ErrInvalidProduct, cost)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.findOwnedLocked(sellerID, name)
	if err != nil {
		return nil, err
	}
	p.Cost = cost

	cp := *p
	return &cp, nil
}

func (s *MemoryProductStore) UpdateAmount(_ context.Context, sellerID, name string, amount int64) (*model.Product, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount %d", ErrInvalidProduct, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.findOwnedLocked(sellerID, name)
	if err != nil {
		return nil, err
	}
	p.AmountAvailable = amount

	cp := *p
	return &cp, nil
}

func (s *MemoryProductStore) DecrementAmount(_ context.Context, id string, qty int64) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrProductNotFound, id)
	}
	if qty > p.AmountAvailable {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, qty, p.AmountAvailable)
	}
	p.AmountAvailable -= qty

	cp := *p
	return &cp, nil
}

func (s *MemoryProductStore) Delete(_ context.Context, sellerID, name string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.findOwnedLocked(sellerID, name)
	if err != nil {
		return nil, err
	}
	delete(s.products, p.ID)

	cp := *p
	return &cp, nil
}

// findOwnedLocked resolves (sellerID, name). A name owned by a different
// seller answers ErrNotTheOwner; an unknown name answers
// ErrProductNotFound. Caller must hold s.mu.
func (s *MemoryProductStore) findOwnedLocked(sellerID, name string) (*model.Product, error) {
	var foreignOwner bool
	for _, p := range s.products {
		if p.Name != name {
			continue
		}
		if p.SellerID == sellerID {
			return p, nil
		}
		foreignOwner = true
	}
	if foreignOwner {
		return nil, fmt.Errorf("%w: %s", ErrNotTheOwner, name)
	}
	return nil, fmt.Errorf("%w: %s", ErrProductNotFound, name)
}
