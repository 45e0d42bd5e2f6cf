// Package store defines the persistence interfaces for account and
// product records. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing and single-node
// development).
//
// Every mutation is a whole-record rewrite that is atomic at single-key
// granularity: no caller can observe a half-written record. Cross-record
// atomicity is the engine's job, not the store's.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vendmx/vending-engine/internal/model"
)

var (
	// ErrAccountNotFound is returned when no account matches the given
	// username or id.
	ErrAccountNotFound = errors.New("store: account not found")

	// ErrAccountExists is returned when creating an account whose
	// username is already taken.
	ErrAccountExists = errors.New("store: account already exists")

	// ErrNotABuyer is returned when a deposit mutation targets a
	// non-buyer account.
	ErrNotABuyer = errors.New("store: account is not a buyer")

	// ErrInsufficientDeposit is returned when a debit would push the
	// deposit below zero.
	ErrInsufficientDeposit = errors.New("store: insufficient deposit")

	// ErrProductNotFound is returned when no product matches the given
	// id or (seller, name) pair.
	ErrProductNotFound = errors.New("store: product not found")

	// ErrProductExists is returned when a seller already has a product
	// with the same name.
	ErrProductExists = errors.New("store: product already exists")

	// ErrInvalidProduct is returned when a product's cost or amount
	// violates the catalog invariants.
	ErrInvalidProduct = errors.New("store: invalid product")

	// ErrNotTheOwner is returned when a product mutation is attempted by
	// a seller that does not own the product.
	ErrNotTheOwner = errors.New("store: not the product owner")

	// ErrInsufficientStock is returned when a decrement asks for more
	// units than are available.
	ErrInsufficientStock = errors.New("store: insufficient stock")
)

// AccountStore is the persistence interface for account records, keyed by
// username (unique) and id.
type AccountStore interface {
	// Create persists a new account. Fails with ErrAccountExists if the
	// username is taken.
	Create(ctx context.Context, a *model.Account) error

	// Get retrieves an account by username.
	Get(ctx context.Context, username string) (*model.Account, error)

	// GetByID retrieves an account by id.
	GetByID(ctx context.Context, id string) (*model.Account, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, username, passwordHash string) error

	// UpdateDeposit applies a signed delta to a buyer's deposit and
	// returns the updated record. Fails with ErrNotABuyer for non-buyer
	// accounts and ErrInsufficientDeposit if the result would be
	// negative.
	UpdateDeposit(ctx context.Context, username string, delta int64) (*model.Account, error)

	// SetDeposit overwrites a buyer's deposit with an absolute value.
	SetDeposit(ctx context.Context, username string, value int64) (*model.Account, error)

	// Delete removes the account unconditionally, even with deposit
	// outstanding.
	Delete(ctx context.Context, username string) error
}

// ProductStore is the persistence interface for product records, keyed by
// id and by (sellerID, name).
type ProductStore interface {
	// Create persists a new product. Fails with ErrProductExists on a
	// (seller, name) collision and ErrInvalidProduct if cost or amount
	// violate the catalog invariants.
	Create(ctx context.Context, p *model.Product) error

	// Get retrieves a product by id.
	Get(ctx context.Context, id string) (*model.Product, error)

	// GetByName retrieves a product by name, any seller.
	GetByName(ctx context.Context, name string) (*model.Product, error)

	// UpdateCost sets the cost of the seller's product.
	UpdateCost(ctx context.Context, sellerID, name string, cost int64) (*model.Product, error)

	// UpdateAmount sets the available amount of the seller's product.
	UpdateAmount(ctx context.Context, sellerID, name string, amount int64) (*model.Product, error)

	// DecrementAmount atomically subtracts qty from the product's
	// available amount and returns the updated record. Fails with
	// ErrInsufficientStock if qty exceeds the amount available.
	DecrementAmount(ctx context.Context, id string, qty int64) (*model.Product, error)

	// Delete removes the seller's product and returns the removed
	// record, so cache layers can invalidate their by-id entries.
	Delete(ctx context.Context, sellerID, name string) (*model.Product, error)
}

// ValidateProduct checks the catalog invariants shared by every backend:
// non-empty name, positive cost in exact coin multiples, non-negative
// amount.
func ValidateProduct(name string, cost, amount, divisor int64) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidProduct)
	}
	if cost <= 0 {
		return fmt.Errorf("%w: cost must be positive, got %d", ErrInvalidProduct, cost)
	}
	if cost%divisor != 0 {
		return fmt.Errorf("%w: cost %d is not a multiple of %d", ErrInvalidProduct, cost, divisor)
	}
	if amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative, got %d", ErrInvalidProduct, amount)
	}
	return nil
}
