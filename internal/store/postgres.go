package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendmx/vending-engine/internal/coins"
	"github.com/vendmx/vending-engine/internal/model"
)

// PostgresAccountStore implements AccountStore using PostgreSQL as the
// source of truth. Deposit guards are enforced in SQL as well as in the
// engine so a lost race can never drive a deposit negative.
type PostgresAccountStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAccountStore creates a PostgreSQL-backed account store.
func NewPostgresAccountStore(pool *pgxpool.Pool) *PostgresAccountStore {
	return &PostgresAccountStore{pool: pool}
}

const accountColumns = `id, username, password_hash, deposit, role, created_at`

func (s *PostgresAccountStore) Create(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, password_hash, deposit, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Username, a.PasswordHash, a.Deposit, a.Role, a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.Username)
	}
	return err
}

func (s *PostgresAccountStore) Get(ctx context.Context, username string) (*model.Account, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username), username)
}

func (s *PostgresAccountStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id), id)
}

func (s *PostgresAccountStore) scanOne(row pgx.Row, key string) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Deposit, &a.Role, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", key, err)
	}
	return &a, nil
}

func (s *PostgresAccountStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE username = $1`,
		username, passwordHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	return nil
}

func (s *PostgresAccountStore) UpdateDeposit(ctx context.Context, username string, delta int64) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts
		 SET deposit = deposit + $2
		 WHERE username = $1 AND role = 'buyer' AND deposit + $2 >= 0
		 RETURNING `+accountColumns,
		username, delta,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Deposit, &a.Role, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.classifyDepositFailure(ctx, username, delta)
	}
	if err != nil {
		return nil, fmt.Errorf("update deposit %s: %w", username, err)
	}
	return &a, nil
}

func (s *PostgresAccountStore) SetDeposit(ctx context.Context, username string, value int64) (*model.Account, error) {
	if value < 0 {
		return nil, fmt.Errorf("%w: deposit cannot be set to %d", ErrInsufficientDeposit, value)
	}
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts
		 SET deposit = $2
		 WHERE username = $1 AND role = 'buyer'
		 RETURNING `+accountColumns,
		username, value,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Deposit, &a.Role, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.classifyDepositFailure(ctx, username, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("set deposit %s: %w", username, err)
	}
	return &a, nil
}

// classifyDepositFailure distinguishes why a guarded deposit UPDATE
// matched no row: missing account, wrong role, or a debit past zero.
func (s *PostgresAccountStore) classifyDepositFailure(ctx context.Context, username string, delta int64) error {
	a, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	if a.Role != model.RoleBuyer {
		return fmt.Errorf("%w: %s", ErrNotABuyer, username)
	}
	return fmt.Errorf("%w: deposit %d, delta %d", ErrInsufficientDeposit, a.Deposit, delta)
}

func (s *PostgresAccountStore) Delete(ctx context.Context, username string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	return nil
}

// PostgresProductStore implements ProductStore using PostgreSQL. The
// stock guard lives in the decrement statement itself.
type PostgresProductStore struct {
	pool *pgxpool.Pool
}

// NewPostgresProductStore creates a PostgreSQL-backed product store.
func NewPostgresProductStore(pool *pgxpool.Pool) *PostgresProductStore {
	return &PostgresProductStore{pool: pool}
}

const productColumns = `id, name, cost, amount_available, seller_id, created_at`

func (s *PostgresProductStore) Create(ctx context.Context, p *model.Product) error {
	if err := ValidateProduct(p.Name, p.Cost, p.AmountAvailable, coins.Divisor); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name, cost, amount_available, seller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Cost, p.AmountAvailable, p.SellerID, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s by seller %s", ErrProductExists, p.Name, p.SellerID)
	}
	return err
}

func (s *PostgresProductStore) Get(ctx context.Context, id string) (*model.Product, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id), id)
}

func (s *PostgresProductStore) GetByName(ctx context.Context, name string) (*model.Product, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE name = $1 LIMIT 1`, name), name)
}

func (s *PostgresProductStore) scanOne(row pgx.Row, key string) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Cost, &p.AmountAvailable, &p.SellerID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", key, err)
	}
	return &p, nil
}

func (s *PostgresProductStore) UpdateCost(ctx context.Context, sellerID, name string, cost int64) (*model.Product, error) {
	if cost <= 0 || cost%coins.Divisor != 0 {
		return nil, fmt.Errorf("%w: cost %d", ErrInvalidProduct, cost)
	}
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`UPDATE products SET cost = $3
		 WHERE seller_id = $1 AND name = $2
		 RETURNING `+productColumns,
		sellerID, name, cost,
	).Scan(&p.ID, &p.Name, &p.Cost, &p.AmountAvailable, &p.SellerID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.classifyOwnershipFailure(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("update cost %s: %w", name, err)
	}
	return &p, nil
}

func (s *PostgresProductStore) UpdateAmount(ctx context.Context, sellerID, name string, amount int64) (*model.Product, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount %d", ErrInvalidProduct, amount)
	}
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`UPDATE products SET amount_available = $3
		 WHERE seller_id = $1 AND name = $2
		 RETURNING `+productColumns,
		sellerID, name, amount,
	).Scan(&p.ID, &p.Name, &p.Cost, &p.AmountAvailable, &p.SellerID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.classifyOwnershipFailure(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("update amount %s: %w", name, err)
	}
	return &p, nil
}

func (s *PostgresProductStore) DecrementAmount(ctx context.Context, id string, qty int64) (*model.Product, error) {
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`UPDATE products SET amount_available = amount_available - $2
		 WHERE id = $1 AND amount_available >= $2
		 RETURNING `+productColumns,
		id, qty,
	).Scan(&p.ID, &p.Name, &p.Cost, &p.AmountAvailable, &p.SellerID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: requested %d of product %s", ErrInsufficientStock, qty, id)
	}
	if err != nil {
		return nil, fmt.Errorf("decrement product %s: %w", id, err)
	}
	return &p, nil
}

func (s *PostgresProductStore) Delete(ctx context.Context, sellerID, name string) (*model.Product, error) {
	var p model.Product
	err := s.pool.QueryRow(ctx,
		`DELETE FROM products WHERE seller_id = $1 AND name = $2
		 RETURNING `+productColumns,
		sellerID, name,
	).Scan(&p.ID, &p.Name, &p.Cost, &p.AmountAvailable, &p.SellerID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.classifyOwnershipFailure(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("delete product %s: %w", name, err)
	}
	return &p, nil
}

// classifyOwnershipFailure distinguishes a missing product from one owned
// by another seller.
func (s *PostgresProductStore) classifyOwnershipFailure(ctx context.Context, name string) error {
	if _, err := s.GetByName(ctx, name); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrNotTheOwner, name)
}

// isUniqueViolation reports whether err is a PostgreSQL 23505 error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
