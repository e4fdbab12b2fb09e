package product

import (
	"time"

	"github.com/tokenbay/storefront/internal/money"
)

// NFTDescriptor marks a product as issuing a credential token on purchase.
type NFTDescriptor struct {
	Enabled       bool   `json:"enabled"`
	TokenStandard string `json:"token_standard,omitempty"`
	CollectionRef string `json:"collection_ref,omitempty"`
}

type Product struct {
	ID          string            `json:"id"`
	MerchantID  string            `json:"merchant_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Price       money.Money       `json:"price"`
	Stock       int               `json:"stock"`
	TrackStock  bool              `json:"track_stock"`
	Active      bool              `json:"active"`
	NFT         NFTDescriptor     `json:"nft"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Available reports whether qty units can be sold right now.
func (p *Product) Available(qty int) bool {
	if !p.Active {
		return false
	}
	if !p.TrackStock {
		return true
	}
	return p.Stock >= qty
}

// ListResponse represents the paginated response of products.
// swagger:model
type ListResponse struct {
	// search query applied
	Q string `json:"q,omitempty"`
	// limit applied
	Limit int `json:"limit"`
	// offset applied
	Offset int `json:"offset"`
	// items found
	Items []Product `json:"items"`
}
