package merchant

import "time"

type Merchant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// ContractRef is the merchant's on-chain collection used for credential
	// tokens and token-gated access checks.
	ContractRef string `json:"contract_ref,omitempty"`
	// PayoutKey is the instant-payment key charges are settled against.
	PayoutKey string `json:"payout_key,omitempty"`
	// SplitPercentage is the platform's cut in [0,1]; zero means "use the
	// configured default".
	SplitPercentage float64   `json:"split_percentage"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CanProcessOrders requires the active flag and a payout destination.
func (m *Merchant) CanProcessOrders() bool {
	return m.Active && m.PayoutKey != ""
}
