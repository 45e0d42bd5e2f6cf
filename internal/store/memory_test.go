package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendmx/vending-engine/internal/model"
	"github.com/vendmx/vending-engine/internal/store"
)

func seedAccount(t *testing.T, s *store.MemoryAccountStore, username string, role model.Role, deposit int64) *model.Account {
	t.Helper()
	a := &model.Account{
		ID:        "id-" + username,
		Username:  username,
		Deposit:   deposit,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("failed to seed account %s: %v", username, err)
	}
	return a
}

func seedProduct(t *testing.T, s *store.MemoryProductStore, id, name string, cost, amount int64, sellerID string) *model.Product {
	t.Helper()
	p := &model.Product{
		ID:              id,
		Name:            name,
		Cost:            cost,
		AmountAvailable: amount,
		SellerID:        sellerID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("failed to seed product %s: %v", name, err)
	}
	return p
}

// --- Account store ---

func TestAccountStore_CreateDuplicate(t *testing.T) {
	s := store.NewMemoryAccountStore()
	seedAccount(t, s, "alice", model.RoleBuyer, 0)

	err := s.Create(context.Background(), &model.Account{ID: "other", Username: "alice", Role: model.RoleBuyer})
	if !errors.Is(err, store.ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}
}

func TestAccountStore_GetMissing(t *testing.T) {
	s := store.NewMemoryAccountStore()
	_, err := s.Get(context.Background(), "nobody")
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountStore_GetByID(t *testing.T) {
	s := store.NewMemoryAccountStore()
	a := seedAccount(t, s, "alice", model.RoleBuyer, 25)

	got, err := s.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected alice, got %s", got.Username)
	}
}

func TestAccountStore_UpdateDeposit_Accumulates(t *testing.T) {
	s := store.NewMemoryAccountStore()
	seedAccount(t, s, "alice", model.RoleBuyer, 0)

	ctx := context.Background()
	for _, coin := range []int64{5, 10, 20} {
		if _, err := s.UpdateDeposit(ctx, "alice", coin); err != nil {
			t.Fatalf("deposit %d: %v", coin, err)
		}
	}

	a, _ := s.Get(ctx, "alice")
	if a.Deposit != 35 {
		t.Errorf("expected deposit 35, got %d", a.Deposit)
	}
}

func TestAccountStore_UpdateDeposit_SellerRejected(t *testing.T) {
	s := store.NewMemoryAccountStore()
	seedAccount(t, s, "bob", model.RoleSeller, 0)

	_, err := s.UpdateDeposit(context.Background(), "bob", 10)
	if !errors.Is(err, store.ErrNotABuyer) {
		t.Errorf("expected ErrNotABuyer, got %v", err)
	}

	a, _ := s.Get(context.Background(), "bob")
	if a.Deposit != 0 {
		t.Errorf("seller deposit should stay 0, got %d", a.Deposit)
	}
}

func TestAccountStore_UpdateDeposit_NeverNegative(t *testing.T) {
	s := store.NewMemoryAccountStore()
	seedAccount(t, s, "alice", model.RoleBuyer, 10)

	_, err := s.UpdateDeposit(context.Background(), "alice", -15)
	if !errors.Is(err, store.ErrInsufficientDeposit) {
		t.Errorf("expected ErrInsufficientDeposit, got %v", err)
	}

	a, _ := s.Get(context.Background(), "alice")
	if a.Deposit != 10 {
		t.Errorf("failed debit must leave deposit unchanged, got %d", a.Deposit)
	}
}

func TestAccountStore_SetDeposit(t *testing.T) {
	s := store.NewMemoryAccountStore()
	seedAccount(t, s, "alice", model.RoleBuyer, 95)

	a, err := s.SetDeposit(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Deposit != 0 {
		t.Errorf("expected deposit 0, got %d", a.Deposit)
	}
}

func TestAccountStore_Delete_Unconditional(t *testing.T) {
	s := store.NewMemoryAccountStore()
	seedAccount(t, s, "alice", model.RoleBuyer, 100)

	// Outstanding deposit does not block deletion; the amount is forfeit.
	if err := s.Delete(context.Background(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(context.Background(), "alice"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound after delete, got %v", err)
	}
}

func TestAccountStore_CopiesOut(t *testing.T) {
	s := store.NewMemoryAccountStore()
	seedAccount(t, s, "alice", model.RoleBuyer, 50)

	a, _ := s.Get(context.Background(), "alice")
	a.Deposit = 9999

	fresh, _ := s.Get(context.Background(), "alice")
	if fresh.Deposit != 50 {
		t.Errorf("mutating a returned record must not affect the store, got %d", fresh.Deposit)
	}
}

// --- Product store ---

func TestProductStore_CreateInvalid(t *testing.T) {
	s := store.NewMemoryProductStore()
	ctx := context.Background()

	tests := []struct {
		name   string
		cost   int64
		amount int64
	}{
		{"", 5, 1},        // empty name
		{"cola", 0, 1},    // zero cost
		{"cola", -5, 1},   // negative cost
		{"cola", 7, 1},    // not a coin multiple
		{"cola", 10, -1},  // negative amount
	}
	for _, tt := range tests {
		err := s.Create(ctx, &model.Product{ID: "p1", Name: tt.name, Cost: tt.cost, AmountAvailable: tt.amount, SellerID: "s1"})
		if !errors.Is(err, store.ErrInvalidProduct) {
			t.Errorf("Create(%q, cost=%d, amount=%d): expected ErrInvalidProduct, got %v",
				tt.name, tt.cost, tt.amount, err)
		}
	}
}

func TestProductStore_CreateDuplicatePerSeller(t *testing.T) {
	s := store.NewMemoryProductStore()
	seedProduct(t, s, "p1", "cola", 5, 10, "seller1")

	err := s.Create(context.Background(), &model.Product{ID: "p2", Name: "cola", Cost: 5, AmountAvailable: 1, SellerID: "seller1"})
	if !errors.Is(err, store.ErrProductExists) {
		t.Errorf("expected ErrProductExists, got %v", err)
	}

	// Same name under a different seller is allowed.
	err = s.Create(context.Background(), &model.Product{ID: "p3", Name: "cola", Cost: 5, AmountAvailable: 1, SellerID: "seller2"})
	if err != nil {
		t.Errorf("same name under another seller should succeed, got %v", err)
	}
}

func TestProductStore_UpdateCost_OwnerOnly(t *testing.T) {
	s := store.NewMemoryProductStore()
	seedProduct(t, s, "p1", "cola", 5, 10, "seller1")

	_, err := s.UpdateCost(context.Background(), "seller2", "cola", 10)
	if !errors.Is(err, store.ErrNotTheOwner) {
		t.Errorf("expected ErrNotTheOwner, got %v", err)
	}

	p, err := s.UpdateCost(context.Background(), "seller1", "cola", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Cost != 10 {
		t.Errorf("expected cost 10, got %d", p.Cost)
	}
}

func TestProductStore_UpdateCost_UnknownName(t *testing.T) {
	s := store.NewMemoryProductStore()
	_, err := s.UpdateCost(context.Background(), "seller1", "ghost", 10)
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductStore_UpdateAmount(t *testing.T) {
	s := store.NewMemoryProductStore()
	seedProduct(t, s, "p1", "cola", 5, 10, "seller1")

	p, err := s.UpdateAmount(context.Background(), "seller1", "cola", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AmountAvailable != 42 {
		t.Errorf("expected amount 42, got %d", p.AmountAvailable)
	}

	if _, err := s.UpdateAmount(context.Background(), "seller1", "cola", -1); !errors.Is(err, store.ErrInvalidProduct) {
		t.Errorf("expected ErrInvalidProduct for negative amount, got %v", err)
	}
}

func TestProductStore_DecrementAmount(t *testing.T) {
	s := store.NewMemoryProductStore()
	seedProduct(t, s, "p1", "cola", 5, 3, "seller1")

	p, err := s.DecrementAmount(context.Background(), "p1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AmountAvailable != 1 {
		t.Errorf("expected amount 1, got %d", p.AmountAvailable)
	}

	_, err = s.DecrementAmount(context.Background(), "p1", 2)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}

	fresh, _ := s.Get(context.Background(), "p1")
	if fresh.AmountAvailable != 1 {
		t.Errorf("failed decrement must leave stock unchanged, got %d", fresh.AmountAvailable)
	}
}

func TestProductStore_Delete_OwnerOnly(t *testing.T) {
	s := store.NewMemoryProductStore()
	seedProduct(t, s, "p1", "cola", 5, 10, "seller1")

	if _, err := s.Delete(context.Background(), "seller2", "cola"); !errors.Is(err, store.ErrNotTheOwner) {
		t.Errorf("expected ErrNotTheOwner, got %v", err)
	}

	// The removed record comes back so cache layers can invalidate by id.
	p, err := s.Delete(context.Background(), "seller1", "cola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "p1" {
		t.Errorf("expected removed record p1, got %s", p.ID)
	}

	if _, err := s.Get(context.Background(), "p1"); !errors.Is(err, store.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound after delete, got %v", err)
	}
}
