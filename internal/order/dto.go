package order

// CreateOrderItem payload for one cart line.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID string `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"  example:"2"`
}

// CreateOrderRequest payload for order assembly.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	MerchantID    string            `json:"merchant_id" example:"b2f5ff47-2b1e-4f22-8a96-5f3c1f2f2e7b"`
	BuyerID       string            `json:"buyer_id"    example:"0b9a6c33-8d1e-4a8f-93ab-1a2b3c4d5e6f"`
	PaymentMethod string            `json:"payment_method" example:"instant_payment"`
	BuyerWallet   string            `json:"buyer_wallet,omitempty" example:"0x742d35Cc6634C0532925a3b844Bc454e4438f44e"`
	Items         []CreateOrderItem `json:"items"`
	ShippingMinor int64             `json:"shipping_minor,omitempty" example:"1500"`
	TaxMinor      int64             `json:"tax_minor,omitempty"      example:"300"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PayOrderRequest selects the payment rail for a pending order.
// swagger:model PayOrderRequest
type PayOrderRequest struct {
	Method string `json:"method" example:"on_chain"`
	// On-chain fields
	WalletAddress string `json:"wallet_address,omitempty" example:"0x742d35Cc6634C0532925a3b844Bc454e4438f44e"`
	Amount        string `json:"amount,omitempty"         example:"0.052"`
	TokenSymbol   string `json:"token_symbol,omitempty"   example:"ETH"`
}

// MintOrderRequest triggers (or retries) credential minting for a paid order.
// swagger:model MintOrderRequest
type MintOrderRequest struct {
	BuyerWallet string `json:"buyer_wallet" example:"0x742d35Cc6634C0532925a3b844Bc454e4438f44e"`
	ContractRef string `json:"contract_ref,omitempty"`
}
