package banking

import (
	"context"
	"time"

	"github.com/lockfleet/lockfleet"
	"github.com/lockfleet/lockfleet/internal/storage"
)

const (
	// MetricTransferAttempt etc. tag the business-operation view of
	// telemetry, distinct from the lock core's own acquire/release metrics.
	MetricTransferAttempt  = "lockfleet.banking.transfer.attempt"
	MetricTransferSuccess  = "lockfleet.banking.transfer.success"
	MetricTransferFailure  = "lockfleet.banking.transfer.failure"
	MetricWithdrawAttempt  = "lockfleet.banking.withdraw.attempt"
	MetricWithdrawSuccess  = "lockfleet.banking.withdraw.success"
	MetricWithdrawFailure  = "lockfleet.banking.withdraw.failure"
	MetricOperationLatency = "lockfleet.banking.operation.latency"
)

// lockTTL is the lease/session budget held over an account pair while the
// orchestrator re-reads, mutates, and writes both rows under a storage
// transaction.
const lockTTL = 10 * time.Second

// Orchestrator is the business operation orchestrator (C6): it validates
// inputs, records a transaction row, guards the involved account keys
// through the multi-lock coordinator (C5), and commits balance changes
// under a storage transaction. It is the teacher's own transaction.go
// doc-comment example - a WithAtomicUpdate-guarded balance mutation -
// promoted to a full component.
type Orchestrator struct {
	store       *storage.Store
	coordinator *lockfleet.Coordinator
	logger      lockfleet.Logger
	metrics     lockfleet.Metrics
	backendTag  func() lockfleet.BackendName
	telemetry   *lockfleet.Telemetry
}

// NewOrchestrator wires the orchestrator to the persistence store and the
// lock core's multi-lock coordinator. backendTag reports which backend is
// currently active, stamped onto every transaction record it produces.
func NewOrchestrator(store *storage.Store, coordinator *lockfleet.Coordinator, logger lockfleet.Logger, metrics lockfleet.Metrics, backendTag func() lockfleet.BackendName) *Orchestrator {
	if logger == nil {
		logger = &lockfleet.NoOpLogger{}
	}
	if metrics == nil {
		metrics = &lockfleet.NoOpMetrics{}
	}
	return &Orchestrator{
		store:       store,
		coordinator: coordinator,
		logger:      logger,
		metrics:     metrics,
		backendTag:  backendTag,
	}
}

// WithTelemetry attaches a Telemetry tracker so completed transfers and
// withdrawals count toward the fleet's transaction success rate shown on
// /lock-management/status. Optional: an Orchestrator with no telemetry
// attached behaves exactly as before.
func (o *Orchestrator) WithTelemetry(t *lockfleet.Telemetry) *Orchestrator {
	o.telemetry = t
	return o
}

func (o *Orchestrator) recordTransaction(success bool) {
	if o.telemetry != nil {
		o.telemetry.RecordTransaction(success)
	}
}

func accountLockKey(id string) string {
	return "account_lock:" + id
}

// Transfer moves amount from the "from" account to the "to" account.
// It validates the inputs, persists a PENDING transaction row and moves it
// to PROCESSING, acquires both account locks in deterministic order via C5,
// then, inside one storage transaction, re-reads both rows, checks that
// both are ACTIVE, debits and credits them and writes them back before
// transitioning to COMPLETED. Existence, status and balance are checked
// only under the lock, after the PENDING row has been written; a failed
// check finalizes that row as FAILED.
func (o *Orchestrator) Transfer(ctx context.Context, from, to string, amount int64, description string) (*Transaction, error) {
	o.metrics.Increment(MetricTransferAttempt)
	start := time.Now()
	defer func() { o.metrics.Timing(MetricOperationLatency, time.Since(start)) }()

	if err := validateTransferInputs(from, to, amount); err != nil {
		o.metrics.Increment(MetricTransferFailure)
		o.recordTransaction(false)
		return nil, err
	}

	tx := NewTransaction(KindTransfer, from, to, amount, string(o.backendTag()), description)
	if err := o.persistNewTransaction(ctx, tx); err != nil {
		o.metrics.Increment(MetricTransferFailure)
		o.recordTransaction(false)
		return nil, err
	}

	if err := tx.TransitionTo(StateProcessing); err != nil {
		o.metrics.Increment(MetricTransferFailure)
		o.recordTransaction(false)
		return nil, err
	}
	o.saveTransaction(ctx, tx)

	mh, err := o.coordinator.AcquireAll(ctx, []string{accountLockKey(from), accountLockKey(to)}, lockTTL)
	if err != nil {
		o.failTransaction(ctx, tx, "lock acquisition failed: "+err.Error())
		o.metrics.Increment(MetricTransferFailure)
		o.recordTransaction(false)
		return tx, err
	}
	defer o.coordinator.ReleaseAll(ctx, mh)

	var fromAccount, toAccount Account
	err = o.store.WithTransaction(ctx, func(storeTx *storage.OptimisticTransaction) error {
		if err := storeTx.Get(ctx, AccountKey(from), &fromAccount); err != nil {
			return lockfleet.WithContext(lockfleet.ErrAccountNotFound, map[string]interface{}{"accountId": from})
		}
		if err := storeTx.Get(ctx, AccountKey(to), &toAccount); err != nil {
			return lockfleet.WithContext(lockfleet.ErrAccountNotFound, map[string]interface{}{"accountId": to})
		}

		if err := fromAccount.EnsureActive(); err != nil {
			return err
		}
		if err := toAccount.EnsureActive(); err != nil {
			return err
		}

		if err := fromAccount.Debit(amount); err != nil {
			return err
		}
		toAccount.Credit(amount)

		fromAccount.Version++
		toAccount.Version++

		storeTx.Put(AccountKey(from), fromAccount)
		storeTx.Put(AccountKey(to), toAccount)
		return nil
	})

	if err != nil {
		o.failTransaction(ctx, tx, err.Error())
		o.metrics.Increment(MetricTransferFailure)
		o.recordTransaction(false)
		return tx, err
	}

	if err := tx.TransitionTo(StateCompleted); err != nil {
		o.metrics.Increment(MetricTransferFailure)
		o.recordTransaction(false)
		return tx, err
	}
	o.saveTransaction(ctx, tx)
	o.metrics.Increment(MetricTransferSuccess)
	o.recordTransaction(true)
	return tx, nil
}

// Withdraw debits amount from an account with no corresponding credit
// (the money leaves the system), guarded by a single account lock.
func (o *Orchestrator) Withdraw(ctx context.Context, accountID string, amount int64, description string) (*Transaction, error) {
	o.metrics.Increment(MetricWithdrawAttempt)
	start := time.Now()
	defer func() { o.metrics.Timing(MetricOperationLatency, time.Since(start)) }()

	if err := validateWithdrawInputs(accountID, amount); err != nil {
		o.metrics.Increment(MetricWithdrawFailure)
		o.recordTransaction(false)
		return nil, err
	}

	tx := NewTransaction(KindWithdrawal, accountID, "", amount, string(o.backendTag()), description)
	if err := o.persistNewTransaction(ctx, tx); err != nil {
		o.metrics.Increment(MetricWithdrawFailure)
		o.recordTransaction(false)
		return nil, err
	}

	if err := tx.TransitionTo(StateProcessing); err != nil {
		o.metrics.Increment(MetricWithdrawFailure)
		o.recordTransaction(false)
		return nil, err
	}
	o.saveTransaction(ctx, tx)

	mh, err := o.coordinator.AcquireAll(ctx, []string{accountLockKey(accountID)}, lockTTL)
	if err != nil {
		o.failTransaction(ctx, tx, "lock acquisition failed: "+err.Error())
		o.metrics.Increment(MetricWithdrawFailure)
		o.recordTransaction(false)
		return tx, err
	}
	defer o.coordinator.ReleaseAll(ctx, mh)

	var account Account
	err = o.store.WithTransaction(ctx, func(storeTx *storage.OptimisticTransaction) error {
		if err := storeTx.Get(ctx, AccountKey(accountID), &account); err != nil {
			return lockfleet.WithContext(lockfleet.ErrAccountNotFound, map[string]interface{}{"accountId": accountID})
		}

		if err := account.EnsureActive(); err != nil {
			return err
		}
		if err := account.Debit(amount); err != nil {
			return err
		}

		account.Version++
		storeTx.Put(AccountKey(accountID), account)
		return nil
	})

	if err != nil {
		o.failTransaction(ctx, tx, err.Error())
		o.metrics.Increment(MetricWithdrawFailure)
		o.recordTransaction(false)
		return tx, err
	}

	if err := tx.TransitionTo(StateCompleted); err != nil {
		o.metrics.Increment(MetricWithdrawFailure)
		o.recordTransaction(false)
		return tx, err
	}
	o.saveTransaction(ctx, tx)
	o.metrics.Increment(MetricWithdrawSuccess)
	o.recordTransaction(true)
	return tx, nil
}

// Balance returns the current account row, used by the balance-query
// endpoint.
func (o *Orchestrator) Balance(ctx context.Context, accountID string) (*Account, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	var account Account
	if err := o.store.GetJSON(ctx, AccountKey(accountID), &account); err != nil {
		if lockfleet.IsNotFound(err) {
			return nil, lockfleet.WithContext(lockfleet.ErrAccountNotFound, map[string]interface{}{"accountId": accountID})
		}
		return nil, err
	}
	return &account, nil
}

func validateTransferInputs(from, to string, amount int64) error {
	if from == to {
		return lockfleet.WithContext(lockfleet.ErrValidation, map[string]interface{}{
			"reason": "source and destination accounts must differ",
		})
	}
	if err := ValidateAccountID(from); err != nil {
		return err
	}
	if err := ValidateAccountID(to); err != nil {
		return err
	}
	return validateAmount(amount)
}

func validateWithdrawInputs(accountID string, amount int64) error {
	if err := ValidateAccountID(accountID); err != nil {
		return err
	}
	return validateAmount(amount)
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return lockfleet.WithContext(lockfleet.ErrValidation, map[string]interface{}{
			"field":  "amount",
			"reason": "must be positive",
		})
	}
	const maxAmount = 1_000_000_00 // 1,000,000 in cents
	if amount > maxAmount {
		return lockfleet.WithContext(lockfleet.ErrValidation, map[string]interface{}{
			"field":  "amount",
			"reason": "exceeds maximum transaction amount",
		})
	}
	return nil
}

func (o *Orchestrator) persistNewTransaction(ctx context.Context, tx *Transaction) error {
	if err := o.store.PutJSON(ctx, TransactionKey(tx.ID), tx); err != nil {
		o.logger.Error("failed to persist pending transaction", "transactionId", tx.ID, "error", err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) saveTransaction(ctx context.Context, tx *Transaction) {
	if err := o.store.PutJSON(ctx, TransactionKey(tx.ID), tx); err != nil {
		o.logger.Error("failed to persist transaction state", "transactionId", tx.ID, "state", string(tx.State), "error", err.Error())
	}
}

func (o *Orchestrator) failTransaction(ctx context.Context, tx *Transaction, reason string) {
	if err := tx.Fail(reason); err != nil {
		o.logger.Error("failed to transition transaction to FAILED", "transactionId", tx.ID, "error", err.Error())
		return
	}
	o.saveTransaction(ctx, tx)
}
