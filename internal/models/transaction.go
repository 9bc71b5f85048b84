package models

import "time"

// Transaction types.
const (
	TransactionCharge = "charge"
	TransactionTopUp  = "topup"
	TransactionRefund = "refund"
)

// Transaction status values.
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
)

// TransactionTypes lists every valid transaction type.
var TransactionTypes = []string{TransactionCharge, TransactionTopUp, TransactionRefund}

// TransactionStatuses lists every valid transaction status.
var TransactionStatuses = []string{TransactionPending, TransactionCompleted, TransactionFailed}

// Transaction is a wallet movement as listed by /api/v1/transactions/
// StationID is empty for top-ups.
type Transaction struct {
	ID        string    `json:"id"`
	WalletID  string    `json:"wallet_id"`
	StationID string    `json:"station_id,omitempty"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
	EnergyKWh float64   `json:"energy_kwh,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetID returns the transaction ID.
func (t Transaction) GetID() string { return t.ID }
