// Package vending implements the purchase transaction engine and its HTTP
// surface: buyer deposits, atomic purchases with compensation on partial
// failure, and seller catalog management.
//
// The engine holds no persistent state of its own. All reads and writes
// go through the account and product stores; per-key locks make each
// read-modify-write sequence exclusive, and a fixed acquisition order
// (account before product) rules out deadlock between purchases.
package vending

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vendmx/vending-engine/internal/coins"
	"github.com/vendmx/vending-engine/internal/metrics"
	"github.com/vendmx/vending-engine/internal/model"
	"github.com/vendmx/vending-engine/internal/store"
)

// reimburseAttempts bounds the compensation retry loop. Exhausting it is
// a reconciliation failure.
const reimburseAttempts = 3

// Engine orchestrates purchases and deposit mutations across the two
// stores. It is stateless between calls and safe for concurrent use.
type Engine struct {
	accounts store.AccountStore
	products store.ProductStore
	locks    *keyLocks
	hub      *Hub // optional; nil disables broadcasts
}

// NewEngine creates an engine over the given stores. lockWait bounds how
// long any operation waits for a contended per-key lock. Pass nil for hub
// if event broadcasting is not needed.
func NewEngine(accounts store.AccountStore, products store.ProductStore, lockWait time.Duration, hub *Hub) *Engine {
	return &Engine{
		accounts: accounts,
		products: products,
		locks:    newKeyLocks(lockWait),
		hub:      hub,
	}
}

// --- Account operations ---

// CreateAccount registers a new account with a pre-hashed password. The
// id is generated here; the deposit starts at zero.
func (e *Engine) CreateAccount(ctx context.Context, username, passwordHash string, role model.Role) (*model.Account, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username must not be empty", ErrInvalidArgument)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}

	a := &model.Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Deposit:      0,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.accounts.Create(ctx, a); err != nil {
		return nil, err
	}

	slog.Info("account created", "username", username, "role", role)
	return a, nil
}

// GetAccount returns the account for username.
func (e *Engine) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	return e.accounts.Get(ctx, username)
}

// UpdatePassword replaces the acting account's password hash.
func (e *Engine) UpdatePassword(ctx context.Context, actingUsername, passwordHash string) error {
	return e.accounts.UpdatePassword(ctx, actingUsername, passwordHash)
}

// DeleteAccount removes the acting account unconditionally. An account
// deleted with deposit outstanding forfeits it; that is logged, not
// prevented.
func (e *Engine) DeleteAccount(ctx context.Context, actingUsername string) error {
	release, err := e.locks.acquire(ctx, accountLockKey(actingUsername))
	if err != nil {
		return err
	}
	defer release()

	a, err := e.accounts.Get(ctx, actingUsername)
	if err != nil {
		return err
	}
	if a.Deposit > 0 {
		slog.Warn("account deleted with deposit outstanding",
			"username", actingUsername, "forfeited", a.Deposit)
	}
	return e.accounts.Delete(ctx, actingUsername)
}

// Deposit adds a single coin to the buyer's balance. The amount must be
// one of the accepted denominations.
func (e *Engine) Deposit(ctx context.Context, actingUsername string, amount int64) (*model.Account, error) {
	if !coins.Valid(amount) {
		metrics.DepositRejections.Inc()
		return nil, fmt.Errorf("%w: %d", coins.ErrInvalidDenomination, amount)
	}

	release, err := e.locks.acquire(ctx, accountLockKey(actingUsername))
	if err != nil {
		return nil, err
	}
	defer release()

	a, err := e.accounts.UpdateDeposit(ctx, actingUsername, amount)
	if err != nil {
		return nil, err
	}
	metrics.DepositsTotal.Inc()
	return a, nil
}

// ResetDeposit zeroes the buyer's balance.
func (e *Engine) ResetDeposit(ctx context.Context, actingUsername string) (*model.Account, error) {
	release, err := e.locks.acquire(ctx, accountLockKey(actingUsername))
	if err != nil {
		return nil, err
	}
	defer release()

	return e.accounts.SetDeposit(ctx, actingUsername, 0)
}

// --- Catalog operations ---

// CreateProduct adds a product owned by sellerID.
func (e *Engine) CreateProduct(ctx context.Context, sellerID, name string, cost, amount int64) (*model.Product, error) {
	p := &model.Product{
		ID:              uuid.New().String(),
		Name:            name,
		Cost:            cost,
		AmountAvailable: amount,
		SellerID:        sellerID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.products.Create(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("product created", "name", name, "seller", sellerID, "cost", cost, "amount", amount)
	return p, nil
}

// GetProductByName returns the product with the given name.
func (e *Engine) GetProductByName(ctx context.Context, name string) (*model.Product, error) {
	return e.products.GetByName(ctx, name)
}

// UpdateProductCost sets the cost of the seller's product.
func (e *Engine) UpdateProductCost(ctx context.Context, sellerID, name string, cost int64) (*model.Product, error) {
	return e.products.UpdateCost(ctx, sellerID, name, cost)
}

// UpdateProductAmount sets the available amount of the seller's product
// and broadcasts the new stock level.
func (e *Engine) UpdateProductAmount(ctx context.Context, sellerID, name string, amount int64) (*model.Product, error) {
	p, err := e.products.UpdateAmount(ctx, sellerID, name, amount)
	if err != nil {
		return nil, err
	}
	e.broadcastStock(p)
	return p, nil
}

// DeleteProduct removes the seller's product.
func (e *Engine) DeleteProduct(ctx context.Context, sellerID, name string) error {
	_, err := e.products.Delete(ctx, sellerID, name)
	return err
}

// --- Purchase ---

// Purchase executes one atomic buy: validate, debit, decrement, coin the
// change. Any failure after the debit reimburses the buyer before the
// error surfaces, so a failed purchase is indistinguishable from one that
// never happened. Only a reimbursement failure (ErrReconciliation) leaves
// the system inconsistent, and that is logged and counted as fatal.
func (e *Engine) Purchase(ctx context.Context, buyerUsername, productID string, quantity int64) (*model.PurchaseResult, error) {
	start := time.Now()
	result, err := e.purchase(ctx, buyerUsername, productID, quantity)
	metrics.ObservePurchase(time.Since(start), err)
	return result, err
}

func (e *Engine) purchase(ctx context.Context, buyerUsername, productID string, quantity int64) (*model.PurchaseResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	// Account lock first, product lock second — always this order.
	releaseAccount, err := e.locks.acquire(ctx, accountLockKey(buyerUsername))
	if err != nil {
		return nil, err
	}
	defer releaseAccount()

	buyer, err := e.accounts.Get(ctx, buyerUsername)
	if err != nil {
		return nil, err
	}
	if buyer.Role != model.RoleBuyer {
		return nil, fmt.Errorf("%w: %s", store.ErrNotABuyer, buyerUsername)
	}
	if buyer.Deposit == 0 {
		return nil, ErrZeroDeposit
	}

	releaseProduct, err := e.locks.acquire(ctx, productLockKey(productID))
	if err != nil {
		return nil, err
	}
	defer releaseProduct()

	product, err := e.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.AmountAvailable {
		return nil, fmt.Errorf("%w: requested %d, available %d",
			store.ErrInsufficientStock, quantity, product.AmountAvailable)
	}

	// Cost is positive by the catalog invariant, so the division is safe.
	// An overflowing total could never be covered by any deposit anyway.
	if quantity > math.MaxInt64/product.Cost {
		return nil, fmt.Errorf("%w: cost %d at quantity %d exceeds the representable total",
			ErrInsufficientFunds, product.Cost, quantity)
	}
	total := product.Cost * quantity
	if buyer.Deposit < total {
		return nil, fmt.Errorf("%w: deposit %d, needed %d", ErrInsufficientFunds, buyer.Deposit, total)
	}

	// Commit phase: debit, then decrement. The two writes hit
	// independently stored records, so a decrement failure is undone by
	// re-crediting the debit while both locks are still held.
	buyer, err = e.accounts.UpdateDeposit(ctx, buyerUsername, -total)
	if err != nil {
		return nil, err
	}

	updated, err := e.products.DecrementAmount(ctx, productID, quantity)
	if err != nil {
		if reimburseErr := e.reimburse(ctx, buyerUsername, total); reimburseErr != nil {
			metrics.ReconciliationFailures.Inc()
			slog.Error("reimbursement failed, account debited without dispense",
				"username", buyerUsername,
				"product_id", productID,
				"amount", total,
				"decrement_err", err,
				"reimburse_err", reimburseErr,
			)
			return nil, fmt.Errorf("%w: debit of %d for %s not reimbursed: %v",
				ErrReconciliation, total, buyerUsername, reimburseErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPurchaseFailed, err)
	}

	change, err := coins.MakeChange(buyer.Deposit)
	if err != nil {
		// Both writes committed; undo them while the locks are still held
		// so the failed purchase leaves no trace.
		restockErr := e.restock(ctx, productID, quantity)
		reimburseErr := e.reimburse(ctx, buyerUsername, total)
		if restockErr != nil || reimburseErr != nil {
			metrics.ReconciliationFailures.Inc()
			slog.Error("rollback after change failure incomplete",
				"username", buyerUsername,
				"product_id", productID,
				"amount", total,
				"change_err", err,
				"restock_err", restockErr,
				"reimburse_err", reimburseErr,
			)
			return nil, fmt.Errorf("%w: debit of %d for %s not undone cleanly: %v",
				ErrReconciliation, total, buyerUsername, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPurchaseFailed, err)
	}

	slog.Info("purchase completed",
		"username", buyerUsername,
		"product", updated.Name,
		"quantity", quantity,
		"total_spent", total,
		"remaining_stock", updated.AmountAvailable,
	)
	e.broadcastPurchase(updated, quantity)

	return &model.PurchaseResult{
		TotalSpent: total,
		Product:    *updated,
		Change:     change,
	}, nil
}

// reimburse re-credits a debited amount after a failed commit. It runs
// while the buyer's account lock is still held, so no other operation can
// observe the debited-but-not-reimbursed state. Retried because giving up
// here loses the buyer's money.
func (e *Engine) reimburse(ctx context.Context, username string, amount int64) error {
	var err error
	for attempt := 1; attempt <= reimburseAttempts; attempt++ {
		if _, err = e.accounts.UpdateDeposit(ctx, username, amount); err == nil {
			return nil
		}
		slog.Warn("reimbursement attempt failed",
			"username", username, "amount", amount, "attempt", attempt, "err", err)
	}
	return err
}

// restock returns units to inventory after a committed decrement had to
// be undone. A negative quantity passes the stock guard in every backend.
func (e *Engine) restock(ctx context.Context, id string, qty int64) error {
	var err error
	for attempt := 1; attempt <= reimburseAttempts; attempt++ {
		if _, err = e.products.DecrementAmount(ctx, id, -qty); err == nil {
			return nil
		}
		slog.Warn("restock attempt failed",
			"product_id", id, "quantity", qty, "attempt", attempt, "err", err)
	}
	return err
}

// --- Event broadcasts ---

func (e *Engine) broadcastPurchase(p *model.Product, quantity int64) {
	if e.hub == nil {
		return
	}
	e.hub.Broadcast(Event{
		Type:           EventPurchase,
		ProductID:      p.ID,
		ProductName:    p.Name,
		Quantity:       quantity,
		RemainingStock: p.AmountAvailable,
	})
}

func (e *Engine) broadcastStock(p *model.Product) {
	if e.hub == nil {
		return
	}
	e.hub.Broadcast(Event{
		Type:           EventStockUpdate,
		ProductID:      p.ID,
		ProductName:    p.Name,
		RemainingStock: p.AmountAvailable,
	})
}
