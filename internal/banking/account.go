// Package banking is the illustrative business workload from the teacher's
// own transaction.go doc comment (a balance mutation guarded by a
// distributed lock around a storage transaction), promoted to a full
// component: account rows, transaction records, and the orchestrator that
// moves money between them under the lock core's C5 coordinator.
package banking

import (
	"fmt"
	"regexp"

	"github.com/lockfleet/lockfleet"
)

// AccountStatus is the lifecycle state of an Account row. Only ACTIVE
// accounts may participate in debits or credits.
type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountInactive AccountStatus = "INACTIVE"
	AccountFrozen   AccountStatus = "FROZEN"
	AccountClosed   AccountStatus = "CLOSED"
)

// accountIDPattern bounds account identifiers to the external contract:
// [A-Za-z0-9-]{1,50}.
var accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,50}$`)

// Account is a balance-bearing row, persisted as JSON under
// "accounts/<id>" via the storage Store. Balance is represented in the
// smallest currency unit (cents) to avoid floating-point drift; amounts
// are validated to at most 2 fractional digits at the HTTP boundary.
type Account struct {
	ID      string        `json:"id"`
	Balance int64         `json:"balance"`
	Status  AccountStatus `json:"status"`
	Version int64         `json:"version"`
}

// ValidateAccountID reports whether id matches the external contract.
func ValidateAccountID(id string) error {
	if !accountIDPattern.MatchString(id) {
		return lockfleet.WithContext(lockfleet.ErrValidation, map[string]interface{}{
			"field":  "accountId",
			"value":  id,
			"reason": "must match [A-Za-z0-9-]{1,50}",
		})
	}
	return nil
}

// AccountKey returns the storage key for an account row.
func AccountKey(id string) string {
	return fmt.Sprintf("accounts/%s", id)
}

// EnsureActive returns ErrAccountNotActive if the account cannot
// participate in a debit or credit.
func (a *Account) EnsureActive() error {
	if a.Status != AccountActive {
		return lockfleet.WithContext(lockfleet.ErrAccountNotActive, map[string]interface{}{
			"accountId": a.ID,
			"status":    string(a.Status),
		})
	}
	return nil
}

// Debit subtracts amount from the balance, returning ErrInsufficientFunds
// if the result would go negative (I4: post-debit balance >= 0).
func (a *Account) Debit(amount int64) error {
	if amount > a.Balance {
		return lockfleet.WithContext(lockfleet.ErrInsufficientFunds, map[string]interface{}{
			"accountId": a.ID,
			"balance":   a.Balance,
			"amount":    amount,
		})
	}
	a.Balance -= amount
	return nil
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount int64) {
	a.Balance += amount
}
