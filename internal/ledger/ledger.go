// Package ledger tracks prepaid credit balances. Every debit is a single
// atomic conditional decrement at the storage layer - the balance check and
// the mutation are one operation, so concurrent debits can never oversell
// credits regardless of how many process instances run.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pagevoice/pagevoice/internal/docstore"
)

const usersCollection = "users"

// Sentinel errors for the ledger package.
var (
	// ErrInsufficientCredits is returned when a debit's precondition
	// (balance >= amount) does not hold at decrement time.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUserNotFound is returned when the user record does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Costs holds the per-operation credit prices.
type Costs struct {
	Upload   int64 `json:"upload" mapstructure:"upload"`
	Download int64 `json:"download" mapstructure:"download"`
	Page     int64 `json:"page" mapstructure:"page"`
}

// DefaultCosts returns the standard price list.
func DefaultCosts() Costs {
	return Costs{Upload: 10, Download: 20, Page: 1}
}

// Ledger performs atomic credit operations against user records.
type Ledger struct {
	store docstore.Store
}

// New creates a ledger over the given document store.
func New(store docstore.Store) *Ledger {
	return &Ledger{store: store}
}

// Debit atomically decrements the user's balance by amount, failing with
// ErrInsufficientCredits (and no mutation) if balance < amount at decrement
// time. There is deliberately no read-balance-then-write path here.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	if amount == 0 {
		return nil
	}

	ok, err := l.store.AtomicIncrement(ctx, usersCollection, userID, "credits", -amount, amount)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return fmt.Errorf("debit %d credits from %s: %w", amount, userID, err)
	}
	if !ok {
		return fmt.Errorf("%w: user %s needs %d credits", ErrInsufficientCredits, userID, amount)
	}
	return nil
}

// Refund atomically increments the user's balance by amount. It compensates
// a previously successful Debit whose dependent operation failed; callers
// must invoke it at most once per failed operation - the ledger does not
// deduplicate.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("refund amount must be non-negative, got %d", amount)
	}
	if amount == 0 {
		return nil
	}

	_, err := l.store.AtomicIncrement(ctx, usersCollection, userID, "credits", amount, 0)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return fmt.Errorf("refund %d credits to %s: %w", amount, userID, err)
	}
	return nil
}

// Balance returns the user's current credit balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	raw, err := l.store.Get(ctx, usersCollection, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("read balance for %s: %w", userID, err)
	}

	var user struct {
		Credits int64 `json:"credits"`
	}
	if err := json.Unmarshal(raw, &user); err != nil {
		return 0, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return user.Credits, nil
}
