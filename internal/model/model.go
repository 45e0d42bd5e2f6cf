// Package model defines the core domain types shared across the vending
// engine. All monetary values are int64 counts of the smallest coin unit —
// never floats for money.
package model

import "time"

// Role is the account type. Only buyers hold deposits and purchase;
// only sellers own products.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Account is a registered user of the machine. ID and Role are immutable
// after creation. Deposit is always >= 0 and non-zero only for buyers.
type Account struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Deposit      int64     `json:"deposit" db:"deposit"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Product is a catalog entry owned by one seller. (SellerID, Name) is
// unique; Cost is a positive multiple of the smallest coin divisor;
// AmountAvailable never goes negative.
type Product struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Cost            int64     `json:"cost" db:"cost"`
	AmountAvailable int64     `json:"amount_available" db:"amount_available"`
	SellerID        string    `json:"seller_id" db:"seller_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// PurchaseResult is the outcome of one successful purchase. It is
// ephemeral and never persisted.
//
// Change is the buyer's entire remaining deposit converted to coins, not
// just the leftover from this purchase. The stored deposit is not zeroed:
// the machine treats it as a running tab that is cashed out, in coins, on
// every purchase.
type PurchaseResult struct {
	TotalSpent int64   `json:"total_spent"`
	Product    Product `json:"product"`
	Change     []int64 `json:"change"`
}
