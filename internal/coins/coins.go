// Package coins defines the machine's coin system: the set of accepted
// denominations and the greedy change-making algorithm.
//
// The denomination set {5, 10, 20, 50, 100} is canonical, so greedy
// change is optimal in coin count.
package coins

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDenomination is returned when a deposit is not one of the
	// accepted coin values.
	ErrInvalidDenomination = errors.New("coins: denomination not accepted")

	// ErrNegativeAmount is returned when change is requested for a
	// negative amount. Amounts are validated upstream, so hitting this
	// indicates a caller bug.
	ErrNegativeAmount = errors.New("coins: amount must be non-negative")
)

// Denominations lists the accepted coin values, largest first. The order
// is what the greedy algorithm iterates in.
var Denominations = []int64{100, 50, 20, 10, 5}

// Divisor is the smallest coin unit. Product costs must be exact
// multiples of it.
const Divisor int64 = 5

// Valid reports whether amount is a single accepted coin.
func Valid(amount int64) bool {
	for _, d := range Denominations {
		if amount == d {
			return true
		}
	}
	return false
}

// MakeChange converts amount into coins, largest denomination first.
// The returned coins always sum exactly to amount; amount 0 yields an
// empty slice.
func MakeChange(amount int64) ([]int64, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}

	var change []int64
	for _, d := range Denominations {
		for amount >= d {
			change = append(change, d)
			amount -= d
		}
	}

	if amount != 0 {
		// Only reachable if amount is not a multiple of the smallest
		// coin, which the store-level cost validation rules out.
		return nil, fmt.Errorf("coins: %d cannot be represented exactly", amount)
	}
	return change, nil
}
