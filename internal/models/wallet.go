package models

// Wallet status values.
const (
	WalletActive = "active"
	WalletFrozen = "frozen"
	WalletClosed = "closed"
)

// WalletStatuses lists every valid wallet status.
var WalletStatuses = []string{WalletActive, WalletFrozen, WalletClosed}

// Currencies accepted for wallets.
var Currencies = []string{"EUR", "USD", "GBP", "NOK"}

// Wallet is a customer prepaid wallet as listed by /api/v1/wallets/
type Wallet struct {
	ID       string  `json:"id"`
	Owner    string  `json:"owner"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
	Status   string  `json:"status"`
}

// GetID returns the wallet ID.
func (w Wallet) GetID() string { return w.ID }
