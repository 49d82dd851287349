package banking

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lockfleet/lockfleet"
	"github.com/lockfleet/lockfleet/internal/storage"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	dir, err := os.MkdirTemp("", "lockfleet-banking-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	backend := storage.NewFilesystemBackend(dir)
	store := storage.NewStore(backend)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	lock := lockfleet.NewRedisLock(client, "lockfleet-banking-test", &lockfleet.NoOpLogger{}, &lockfleet.NoOpMetrics{})
	coordinator := lockfleet.NewCoordinator(lock, &lockfleet.NoOpLogger{}, &lockfleet.NoOpMetrics{})

	return NewOrchestrator(store, coordinator, &lockfleet.NoOpLogger{}, &lockfleet.NoOpMetrics{}, func() lockfleet.BackendName {
		return lockfleet.BackendRedis
	})
}

func seedAccount(t *testing.T, o *Orchestrator, id string, balance int64, status AccountStatus) {
	t.Helper()
	account := Account{ID: id, Balance: balance, Status: status, Version: 1}
	if err := o.store.PutJSON(context.Background(), AccountKey(id), &account); err != nil {
		t.Fatalf("failed to seed account %s: %v", id, err)
	}
}

func TestOrchestrator_TransferSuccess(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 10000, AccountActive)
	seedAccount(t, o, "bob", 500, AccountActive)

	tx, err := o.Transfer(context.Background(), "alice", "bob", 2500, "rent")
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if tx.State != StateCompleted {
		t.Fatalf("expected transaction state COMPLETED, got %s", tx.State)
	}

	alice, err := o.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Balance(alice) failed: %v", err)
	}
	if alice.Balance != 7500 {
		t.Errorf("alice balance = %d, want 7500", alice.Balance)
	}

	bob, err := o.Balance(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Balance(bob) failed: %v", err)
	}
	if bob.Balance != 3000 {
		t.Errorf("bob balance = %d, want 3000", bob.Balance)
	}
}

func TestOrchestrator_TransferInsufficientFunds(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 100, AccountActive)
	seedAccount(t, o, "bob", 0, AccountActive)

	tx, err := o.Transfer(context.Background(), "alice", "bob", 500, "")
	if err == nil {
		t.Fatal("expected error for insufficient funds")
	}
	if !errors.Is(err, lockfleet.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if tx.State != StateFailed {
		t.Errorf("expected transaction state FAILED, got %s", tx.State)
	}
	if tx.FailReason == "" {
		t.Error("expected a non-empty FailReason")
	}

	alice, err := o.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Balance(alice) failed: %v", err)
	}
	if alice.Balance != 100 {
		t.Errorf("alice balance should be untouched, got %d", alice.Balance)
	}
}

func TestOrchestrator_TransferSameAccountRejected(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 1000, AccountActive)

	_, err := o.Transfer(context.Background(), "alice", "alice", 100, "")
	if !errors.Is(err, lockfleet.ErrValidation) {
		t.Errorf("expected ErrValidation for same-account transfer, got %v", err)
	}
}

func TestOrchestrator_TransferInactiveAccount(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 1000, AccountFrozen)
	seedAccount(t, o, "bob", 0, AccountActive)

	tx, err := o.Transfer(context.Background(), "alice", "bob", 100, "")
	if err == nil {
		t.Fatal("expected error transferring from a frozen account")
	}
	if tx.State != StateFailed {
		t.Errorf("expected transaction state FAILED, got %s", tx.State)
	}
}

func TestOrchestrator_TransferAccountNotFound(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 1000, AccountActive)

	_, err := o.Transfer(context.Background(), "alice", "ghost", 100, "")
	if !errors.Is(err, lockfleet.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestOrchestrator_WithdrawSuccess(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 10000, AccountActive)

	tx, err := o.Withdraw(context.Background(), "alice", 4000, "atm")
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if tx.State != StateCompleted {
		t.Fatalf("expected transaction state COMPLETED, got %s", tx.State)
	}

	alice, err := o.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if alice.Balance != 6000 {
		t.Errorf("alice balance = %d, want 6000", alice.Balance)
	}
}

func TestOrchestrator_WithdrawInsufficientFunds(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 100, AccountActive)

	_, err := o.Withdraw(context.Background(), "alice", 200, "")
	if !errors.Is(err, lockfleet.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestOrchestrator_WithdrawInvalidAmount(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 100, AccountActive)

	_, err := o.Withdraw(context.Background(), "alice", 0, "")
	if !errors.Is(err, lockfleet.ErrValidation) {
		t.Errorf("expected ErrValidation for zero amount, got %v", err)
	}

	_, err = o.Withdraw(context.Background(), "alice", -5, "")
	if !errors.Is(err, lockfleet.ErrValidation) {
		t.Errorf("expected ErrValidation for negative amount, got %v", err)
	}
}

// TestOrchestrator_ConcurrentTransfersDoNotDeadlock mirrors the coordinator's
// own deadlock test at the business-operation layer: two goroutines transfer
// in opposite directions between the same two accounts repeatedly. The
// deterministic lock ordering inside AcquireAll must serialize rather than
// deadlock regardless of caller-supplied order.
func TestOrchestrator_ConcurrentTransfersDoNotDeadlock(t *testing.T) {
	o := newTestOrchestrator(t)
	seedAccount(t, o, "alice", 50000, AccountActive)
	seedAccount(t, o, "bob", 50000, AccountActive)

	const rounds = 10
	var wg sync.WaitGroup
	errs := make(chan error, rounds*2)

	run := func(from, to string) {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := o.Transfer(ctx, from, to, 100, "")
		errs <- err
	}

	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go run("alice", "bob")
		go run("bob", "alice")
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected transfer error under concurrency: %v", err)
		}
	}

	alice, _ := o.Balance(context.Background(), "alice")
	bob, _ := o.Balance(context.Background(), "bob")
	if alice.Balance+bob.Balance != 100000 {
		t.Errorf("total balance drifted: alice=%d bob=%d, want sum 100000", alice.Balance, bob.Balance)
	}
}

func TestOrchestrator_BalanceNotFound(t *testing.T) {
	o := newTestOrchestrator(t)

	_, err := o.Balance(context.Background(), "ghost")
	if !errors.Is(err, lockfleet.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestOrchestrator_BalanceInvalidAccountID(t *testing.T) {
	o := newTestOrchestrator(t)

	_, err := o.Balance(context.Background(), "")
	if !errors.Is(err, lockfleet.ErrValidation) {
		t.Errorf("expected ErrValidation for empty account id, got %v", err)
	}
}
