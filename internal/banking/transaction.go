package banking

import (
	"fmt"
	"time"

	"github.com/lockfleet/lockfleet"
)

// TransactionKind identifies which operation produced a transaction record.
type TransactionKind string

const (
	KindTransfer   TransactionKind = "TRANSFER"
	KindWithdrawal TransactionKind = "WITHDRAWAL"
	KindDeposit    TransactionKind = "DEPOSIT"
)

// TransactionState is the transaction record's lifecycle state.
// PENDING -> {PROCESSING, CANCELLED, FAILED}; PROCESSING -> {COMPLETED,
// FAILED}; COMPLETED/FAILED/CANCELLED are terminal.
type TransactionState string

const (
	StatePending    TransactionState = "PENDING"
	StateProcessing TransactionState = "PROCESSING"
	StateCompleted  TransactionState = "COMPLETED"
	StateFailed     TransactionState = "FAILED"
	StateCancelled  TransactionState = "CANCELLED"
)

var validTransitions = map[TransactionState]map[TransactionState]bool{
	StatePending:    {StateProcessing: true, StateCancelled: true, StateFailed: true},
	StateProcessing: {StateCompleted: true, StateFailed: true},
}

// Transaction is the external Transaction Record: an append-mostly audit
// row tracking one business operation from PENDING to a terminal state.
type Transaction struct {
	ID          string           `json:"id"`
	From        string           `json:"from,omitempty"`
	To          string           `json:"to,omitempty"`
	Amount      int64            `json:"amount"`
	Kind        TransactionKind  `json:"kind"`
	State       TransactionState `json:"state"`
	BackendTag  string           `json:"backendTag"`
	CreatedAt   time.Time        `json:"createdAt"`
	Description string           `json:"description,omitempty"`
	FailReason  string           `json:"failReason,omitempty"`
}

// TransactionKey returns the storage key for a transaction record.
func TransactionKey(id string) string {
	return fmt.Sprintf("transactions/%s", id)
}

// NewTransaction builds a PENDING transaction record stamped with the
// backend currently active, per spec: "Transaction row includes the
// backend tag active at orchestration time."
func NewTransaction(kind TransactionKind, from, to string, amount int64, backendTag, description string) *Transaction {
	return &Transaction{
		ID:          lockfleet.NewID(),
		From:        from,
		To:          to,
		Amount:      amount,
		Kind:        kind,
		State:       StatePending,
		BackendTag:  backendTag,
		CreatedAt:   time.Now(),
		Description: description,
	}
}

// TransitionTo moves the transaction to next, rejecting any transition not
// present in the state machine (PENDING->{PROCESSING,CANCELLED,FAILED};
// PROCESSING->{COMPLETED,FAILED}; terminal states are sinks).
func (t *Transaction) TransitionTo(next TransactionState) error {
	allowed, ok := validTransitions[t.State]
	if !ok || !allowed[next] {
		return lockfleet.WithContext(lockfleet.ErrTransactionFailed, map[string]interface{}{
			"transactionId": t.ID,
			"from":          string(t.State),
			"to":            string(next),
			"reason":        "invalid state transition",
		})
	}
	t.State = next
	return nil
}

// Fail transitions the transaction to FAILED and records reason, per
// "Any assertion failure transitions to FAILED with a reason string and
// aborts."
func (t *Transaction) Fail(reason string) error {
	if err := t.TransitionTo(StateFailed); err != nil {
		return err
	}
	t.FailReason = reason
	return nil
}
