package vending

import "errors"

var (
	// ErrInvalidArgument is returned for malformed account parameters
	// that the request-validation layer should have caught.
	ErrInvalidArgument = errors.New("vending: invalid argument")

	// ErrInvalidQuantity is returned when a purchase asks for a
	// non-positive number of units.
	ErrInvalidQuantity = errors.New("vending: quantity must be positive")

	// ErrZeroDeposit is returned when a buyer attempts a purchase with
	// nothing deposited. The machine requires some prior deposit to
	// initiate any purchase, even for the cheapest product.
	ErrZeroDeposit = errors.New("vending: cannot buy without a deposit")

	// ErrInsufficientFunds is returned when the buyer's deposit does not
	// cover cost * quantity.
	ErrInsufficientFunds = errors.New("vending: deposit does not cover purchase")

	// ErrPurchaseFailed wraps the underlying cause after a failed commit
	// whose debit was successfully reimbursed. The buyer's balance is
	// back at its pre-purchase value when this error is returned.
	ErrPurchaseFailed = errors.New("vending: purchase failed, deposit reimbursed")

	// ErrReconciliation is returned when the reimbursement itself failed:
	// the buyer has been debited but the product was not dispensed. This
	// is a fatal inconsistency that needs operator attention and must
	// never be presented as an ordinary request error.
	ErrReconciliation = errors.New("vending: reimbursement failed, manual reconciliation required")

	// ErrBusy is returned when a per-key lock cannot be acquired within
	// the wait budget.
	ErrBusy = errors.New("vending: resource busy, try again")
)
