package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lockfleet/lockfleet"
	"github.com/lockfleet/lockfleet/internal/banking"
)

// LockBuilder stands up a fresh Lock for a named provider, used by the
// switch endpoint to build the incoming backend before handing it to the
// registry. Implemented by internal/config.Config.BuildLock.
type LockBuilder interface {
	BuildLock(provider string, logger lockfleet.Logger, metrics lockfleet.Metrics) (lockfleet.Lock, error)
}

// Handlers implements the HTTP surface of spec.md §6: the two business
// operations, balance lookup, lock-management introspection/switch, and
// the health probe.
type Handlers struct {
	orchestrator *banking.Orchestrator
	registry     *lockfleet.Registry
	telemetry    *lockfleet.Telemetry
	health       *lockfleet.HealthMonitor
	lockBuilder  LockBuilder
	lockManager  *lockfleet.LockManager
	logger       lockfleet.Logger
	validate     *validator.Validate
}

// NewHandlers wires the HTTP surface to its collaborators.
func NewHandlers(orchestrator *banking.Orchestrator, registry *lockfleet.Registry, telemetry *lockfleet.Telemetry, health *lockfleet.HealthMonitor, lockBuilder LockBuilder, logger lockfleet.Logger) *Handlers {
	if logger == nil {
		logger = &lockfleet.NoOpLogger{}
	}
	return &Handlers{
		orchestrator: orchestrator,
		registry:     registry,
		telemetry:    telemetry,
		health:       health,
		lockBuilder:  lockBuilder,
		logger:       logger,
		validate:     validator.New(),
	}
}

// WithLockManager attaches administrative introspection over the Redis key
// space (listing held locks, forcing one closed). Optional: LockManager is
// Redis-specific, so it's only attached when Redis is the configured
// backend; the admin endpoints report unsupported otherwise.
func (h *Handlers) WithLockManager(lm *lockfleet.LockManager) *Handlers {
	h.lockManager = lm
	return h
}

func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeFailure(w, http.StatusBadRequest, "malformed request body", nil)
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		writeFailure(w, http.StatusBadRequest, "validation failed: "+err.Error(), nil)
		return false
	}
	return true
}

// Transfer handles POST /transfer.
func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	tx, err := h.orchestrator.Transfer(r.Context(), req.From, req.To, req.Amount, "")
	if err != nil {
		h.logger.Warn("transfer failed", "from", req.From, "to", req.To, "error", err.Error())
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "transfer completed", transactionToResponse(tx))
}

// Withdraw handles POST /withdraw.
func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	tx, err := h.orchestrator.Withdraw(r.Context(), req.AccountNumber, req.Amount, "")
	if err != nil {
		h.logger.Warn("withdraw failed", "account", req.AccountNumber, "error", err.Error())
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "withdrawal completed", transactionToResponse(tx))
}

// Balance handles GET /accounts/{id}/balance.
func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	account, err := h.orchestrator.Balance(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "balance retrieved", BalanceResponse{
		AccountNumber: account.ID,
		Balance:       account.Balance,
		Status:        string(account.Status),
		LastUpdated:   time.Now().UTC().Format(time.RFC3339),
	})
}

// LockManagementStatus handles GET /lock-management/status.
func (h *Handlers) LockManagementStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.telemetry.Snapshot(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "failed to compute telemetry snapshot", nil)
		return
	}

	active := h.registry.Active()
	report := h.health.Check(r.Context())
	availability := "unavailable"
	if comp, ok := report.Components[string(active.Name())]; ok && comp.Status == lockfleet.StatusUp {
		availability = "available"
	}

	writeSuccess(w, http.StatusOK, "status retrieved", StatusResponse{
		CurrentProvider: string(active.Name()),
		ActiveLocks:     snapshot.ActiveLocks,
		Availability:    availability,
		Statistics: map[string]interface{}{
			"cumulativeAcquired":     snapshot.CumulativeAcquired,
			"contentionRatio":        snapshot.ContentionRatio,
			"completedOps":           snapshot.CompletedOps,
			"uptimeSeconds":          snapshot.Uptime.Seconds(),
			"throughput":             snapshot.Throughput,
			"acquireSuccessRate":     snapshot.AcquireSuccessRate,
			"transactionSuccessRate": snapshot.TransactionSuccessRate,
			"efficiencyScore":        snapshot.EfficiencyScore,
			"efficiencyGrade":        string(snapshot.EfficiencyGrade),
		},
	})
}

// LockManagementSwitch handles POST /lock-management/switch.
func (h *Handlers) LockManagementSwitch(w http.ResponseWriter, r *http.Request) {
	var req SwitchProviderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	previous := h.registry.Active()

	// R1: switching to the currently active provider is a no-op.
	if string(previous.Name()) == req.Provider {
		writeSuccess(w, http.StatusOK, "no-op, already active", SwitchResponse{
			PreviousProvider: string(previous.Name()),
			CurrentProvider:  string(previous.Name()),
		})
		return
	}

	next, err := h.lockBuilder.BuildLock(req.Provider, h.logger, &lockfleet.NoOpMetrics{})
	if err != nil {
		writeError(w, err)
		return
	}
	attachTelemetry(next, h.telemetry)

	if err := h.registry.Switch(r.Context(), next); err != nil {
		writeFailure(w, http.StatusInternalServerError, "switch failed", nil)
		return
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	go func() {
		defer cancel()
		h.registry.Drain(drainCtx, previous.Name(), 30*time.Second)
	}()

	writeSuccess(w, http.StatusOK, "backend switched", SwitchResponse{
		PreviousProvider: string(previous.Name()),
		CurrentProvider:  req.Provider,
	})
}

// LockManagementProviders handles GET /lock-management/providers.
func (h *Handlers) LockManagementProviders(w http.ResponseWriter, r *http.Request) {
	active := h.registry.Active()
	report := h.health.Check(r.Context())

	availability := map[string]string{
		string(lockfleet.BackendRedis):     "unknown",
		string(lockfleet.BackendZooKeeper): "unknown",
	}
	if comp, ok := report.Components[string(active.Name())]; ok {
		if comp.Status == lockfleet.StatusUp {
			availability[string(active.Name())] = "available"
		} else {
			availability[string(active.Name())] = "unavailable"
		}
	}

	writeSuccess(w, http.StatusOK, "providers retrieved", ProvidersResponse{
		SupportedProviders: []string{string(lockfleet.BackendRedis), string(lockfleet.BackendZooKeeper)},
		Current:            string(active.Name()),
		Availability:       availability,
	})
}

// Health handles GET /actuator/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == lockfleet.StatusDown {
		status = http.StatusServiceUnavailable
	}

	components := make(map[string]interface{}, len(report.Components))
	for name, comp := range report.Components {
		components[name] = map[string]interface{}{
			"status":    string(comp.Status),
			"latencyMs": comp.Latency.Milliseconds(),
			"detail":    comp.Detail,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     string(report.Status),
		"components": components,
	})
}

// attachTelemetry wires t into whichever concrete Lock implementation next
// is, so a freshly built backend (initial startup or a runtime switch)
// reports real acquire/release activity instead of sitting dark.
func attachTelemetry(next lockfleet.Lock, t *lockfleet.Telemetry) {
	if t == nil {
		return
	}
	switch backend := next.(type) {
	case *lockfleet.RedisLock:
		backend.WithTelemetry(t)
	case *lockfleet.ZKLock:
		backend.WithTelemetry(t)
	}
}

// LockManagementLocks handles GET /lock-management/locks: lists locks
// currently held in the Redis key space. Only meaningful when Redis is the
// active backend; the ZooKeeper recipe keeps no equivalent scannable index.
func (h *Handlers) LockManagementLocks(w http.ResponseWriter, r *http.Request) {
	if h.lockManager == nil {
		writeFailure(w, http.StatusNotImplemented, "lock listing is only available with the redis backend", nil)
		return
	}

	locks, err := h.lockManager.ListLocks(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "failed to list locks: "+err.Error(), nil)
		return
	}

	resp := make([]LockInfoResponse, 0, len(locks))
	for _, l := range locks {
		resp = append(resp, LockInfoResponse{
			Key:        l.Key,
			TTLSeconds: l.TTL.Seconds(),
			AcquiredAt: l.AcquiredAt.UTC().Format(time.RFC3339),
		})
	}
	writeSuccess(w, http.StatusOK, "locks retrieved", resp)
}

// LockManagementForceRelease handles POST /lock-management/locks/{key}/force-release.
// It bypasses the normal release path entirely, so it's meant for clearing a
// lock whose holder is known to have crashed, not routine use.
func (h *Handlers) LockManagementForceRelease(w http.ResponseWriter, r *http.Request) {
	if h.lockManager == nil {
		writeFailure(w, http.StatusNotImplemented, "force-release is only available with the redis backend", nil)
		return
	}

	key := chi.URLParam(r, "key")
	if err := h.lockManager.ForceRelease(r.Context(), key); err != nil {
		writeFailure(w, http.StatusInternalServerError, "failed to force-release lock: "+err.Error(), nil)
		return
	}

	writeSuccess(w, http.StatusOK, "lock forcefully released", nil)
}

func transactionToResponse(tx *banking.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          tx.ID,
		From:        tx.From,
		To:          tx.To,
		Amount:      tx.Amount,
		Kind:        string(tx.Kind),
		State:       string(tx.State),
		BackendTag:  tx.BackendTag,
		FailReason:  tx.FailReason,
		Description: tx.Description,
	}
}
