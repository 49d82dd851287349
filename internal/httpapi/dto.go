package httpapi

// TransferRequest is the body of POST /transfer.
type TransferRequest struct {
	From   string `json:"from" validate:"required,max=50"`
	To     string `json:"to" validate:"required,max=50"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

// WithdrawRequest is the body of POST /withdraw.
type WithdrawRequest struct {
	AccountNumber string `json:"accountNumber" validate:"required,max=50"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
}

// SwitchProviderRequest is the body of POST /lock-management/switch.
type SwitchProviderRequest struct {
	Provider string `json:"provider" validate:"required,oneof=redis zookeeper"`
}

// TransactionResponse is the transaction descriptor returned by
// /transfer and /withdraw.
type TransactionResponse struct {
	ID          string `json:"id"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Amount      int64  `json:"amount"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	BackendTag  string `json:"backendTag"`
	FailReason  string `json:"failReason,omitempty"`
	Description string `json:"description,omitempty"`
}

// BalanceResponse is the body of GET /accounts/{id}/balance.
type BalanceResponse struct {
	AccountNumber string `json:"accountNumber"`
	Balance       int64  `json:"balance"`
	Status        string `json:"status"`
	LastUpdated   string `json:"lastUpdated"`
}

// StatusResponse is the body of GET /lock-management/status.
type StatusResponse struct {
	CurrentProvider string                 `json:"currentProvider"`
	ActiveLocks     int64                  `json:"activeLocks"`
	Availability    string                 `json:"availability"`
	Statistics      map[string]interface{} `json:"statistics"`
}

// SwitchResponse is the body of POST /lock-management/switch.
type SwitchResponse struct {
	PreviousProvider string `json:"previousProvider"`
	CurrentProvider  string `json:"currentProvider"`
}

// LockInfoResponse describes one held lock in GET /lock-management/locks.
type LockInfoResponse struct {
	Key        string  `json:"key"`
	TTLSeconds float64 `json:"ttlSeconds"`
	AcquiredAt string  `json:"acquiredAt,omitempty"`
}

// ProvidersResponse is the body of GET /lock-management/providers.
type ProvidersResponse struct {
	SupportedProviders []string          `json:"supportedProviders"`
	Current            string            `json:"current"`
	Availability       map[string]string `json:"availability"`
}
