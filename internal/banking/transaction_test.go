package banking

import (
	"testing"
)

func TestNewTransaction_StartsPending(t *testing.T) {
	tx := NewTransaction(KindTransfer, "alice", "bob", 100, "redis", "groceries")
	if tx.State != StatePending {
		t.Errorf("State = %s, want PENDING", tx.State)
	}
	if tx.ID == "" {
		t.Error("expected a non-empty transaction ID")
	}
	if tx.BackendTag != "redis" {
		t.Errorf("BackendTag = %q, want redis", tx.BackendTag)
	}
}

func TestTransaction_TransitionTo_ValidPath(t *testing.T) {
	tx := NewTransaction(KindWithdrawal, "alice", "", 50, "zookeeper", "")

	if err := tx.TransitionTo(StateProcessing); err != nil {
		t.Fatalf("PENDING -> PROCESSING should be allowed: %v", err)
	}
	if err := tx.TransitionTo(StateCompleted); err != nil {
		t.Fatalf("PROCESSING -> COMPLETED should be allowed: %v", err)
	}
}

func TestTransaction_TransitionTo_RejectsInvalid(t *testing.T) {
	tx := NewTransaction(KindWithdrawal, "alice", "", 50, "redis", "")

	if err := tx.TransitionTo(StateCompleted); err == nil {
		t.Error("PENDING -> COMPLETED should be rejected")
	}

	if err := tx.TransitionTo(StateProcessing); err != nil {
		t.Fatalf("PENDING -> PROCESSING should be allowed: %v", err)
	}
	if err := tx.TransitionTo(StatePending); err == nil {
		t.Error("PROCESSING -> PENDING should be rejected")
	}
}

func TestTransaction_TerminalStatesAreSinks(t *testing.T) {
	tx := NewTransaction(KindTransfer, "alice", "bob", 10, "redis", "")
	tx.TransitionTo(StateProcessing)
	tx.TransitionTo(StateCompleted)

	if err := tx.TransitionTo(StateFailed); err == nil {
		t.Error("COMPLETED should be a terminal sink, no further transitions")
	}
}

func TestTransaction_Fail_RecordsReason(t *testing.T) {
	tx := NewTransaction(KindTransfer, "alice", "bob", 10, "redis", "")
	tx.TransitionTo(StateProcessing)

	if err := tx.Fail("insufficient funds"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if tx.State != StateFailed {
		t.Errorf("State = %s, want FAILED", tx.State)
	}
	if tx.FailReason != "insufficient funds" {
		t.Errorf("FailReason = %q, want %q", tx.FailReason, "insufficient funds")
	}
}

func TestTransactionKey(t *testing.T) {
	if got := TransactionKey("abc123"); got != "transactions/abc123" {
		t.Errorf("TransactionKey = %q, want transactions/abc123", got)
	}
}
