package order

import (
	"time"

	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/money"
	"github.com/tokenbay/storefront/internal/product"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusPaymentPending Status = "payment_pending"
	StatusPaid           Status = "paid"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
	StatusFailed         Status = "failed"
	StatusExpired        Status = "expired"
)

// transitions is the canonical state machine. Cancellation is pre-shipment
// only: pending or paid.
var transitions = map[Status][]Status{
	StatusPending:        {StatusPaymentPending, StatusPaid, StatusCancelled, StatusFailed},
	StatusPaymentPending: {StatusPaid, StatusExpired, StatusFailed},
	StatusPaid:           {StatusCompleted, StatusCancelled, StatusRefunded},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaymentPending, StatusPaid, StatusCompleted,
		StatusCancelled, StatusRefunded, StatusFailed, StatusExpired:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return len(transitions[s]) == 0 && s.Valid() }

// ParseStatus normalizes legacy vocabulary still seen on the wire.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "confirmed":
		return StatusPaid, true
	case "canceled":
		return StatusCancelled, true
	}
	st := Status(s)
	return st, st.Valid()
}

type PaymentMethod string

const (
	MethodInstantPayment PaymentMethod = "instant_payment"
	MethodOnChain        PaymentMethod = "on_chain"
)

func (m PaymentMethod) Supported() bool {
	return m == MethodInstantPayment || m == MethodOnChain
}

type LineItem struct {
	ID         string                `json:"id"`
	OrderID    string                `json:"order_id"`
	ProductID  string                `json:"product_id"`
	Name       string                `json:"name"`
	Quantity   int                   `json:"quantity"`
	UnitPrice  money.Money           `json:"unit_price"`
	TotalPrice money.Money           `json:"total_price"`
	NFT        product.NFTDescriptor `json:"nft"`
	Attributes map[string]string     `json:"attributes,omitempty"`
}

type Order struct {
	ID            string            `json:"id"`
	MerchantID    string            `json:"merchant_id"`
	BuyerID       string            `json:"buyer_id"`
	BuyerWallet   string            `json:"buyer_wallet,omitempty"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Status        Status            `json:"status"`
	Items         []LineItem        `json:"items"`
	Subtotal      money.Money       `json:"subtotal"`
	ShippingCost  money.Money       `json:"shipping_cost"`
	Tax           money.Money       `json:"tax"`
	Total         money.Money       `json:"total"`
	PaymentRef    string            `json:"payment_ref,omitempty"`
	MintedTokens  []string          `json:"minted_tokens"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// clone deep-copies the mutable members so With* helpers return values that
// share nothing with the receiver.
func (o Order) clone() Order {
	c := o
	c.Items = append([]LineItem(nil), o.Items...)
	for i := range c.Items {
		if o.Items[i].Attributes != nil {
			attrs := make(map[string]string, len(o.Items[i].Attributes))
			for k, v := range o.Items[i].Attributes {
				attrs[k] = v
			}
			c.Items[i].Attributes = attrs
		}
	}
	c.MintedTokens = append([]string(nil), o.MintedTokens...)
	if o.Metadata != nil {
		md := make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			md[k] = v
		}
		c.Metadata = md
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// WithStatus returns a copy advanced to the given status.
func (o Order) WithStatus(to Status, now time.Time) (Order, error) {
	if !CanTransition(o.Status, to) {
		return Order{}, apperr.InvalidStatef("order %s cannot move from %s to %s", o.ID, o.Status, to)
	}
	c := o.clone()
	c.Status = to
	c.UpdatedAt = now
	if to == StatusCompleted {
		t := now
		c.CompletedAt = &t
	}
	return c, nil
}

// WithMintedTokens returns a completed copy carrying the minted token ids.
// The idempotency check runs first so a fulfilled order answers AlreadyMinted
// rather than a generic state error.
func (o Order) WithMintedTokens(tokens []string, now time.Time) (Order, error) {
	if len(o.MintedTokens) > 0 {
		return Order{}, apperr.New(apperr.AlreadyMinted, "order %s already has %d minted tokens", o.ID, len(o.MintedTokens))
	}
	if o.Status != StatusPaid {
		return Order{}, apperr.InvalidStatef("order %s is %s, minting requires paid", o.ID, o.Status)
	}
	c, err := o.WithStatus(StatusCompleted, now)
	if err != nil {
		return Order{}, err
	}
	c.MintedTokens = append([]string(nil), tokens...)
	return c, nil
}

// WithShipping returns a copy with shipping and tax applied, keeping the
// total = subtotal + shipping + tax identity.
func (o Order) WithShipping(shipping, tax money.Money) (Order, error) {
	c := o.clone()
	sum, err := c.Subtotal.Add(shipping)
	if err != nil {
		return Order{}, err
	}
	sum, err = sum.Add(tax)
	if err != nil {
		return Order{}, err
	}
	c.ShippingCost = shipping
	c.Tax = tax
	c.Total = sum
	return c, nil
}

// HasNFTItems reports whether any line issues credential tokens.
func (o Order) HasNFTItems() bool {
	for _, it := range o.Items {
		if it.NFT.Enabled {
			return true
		}
	}
	return false
}

// NFTUnits is the number of tokens a full mint pass produces.
func (o Order) NFTUnits() int {
	n := 0
	for _, it := range o.Items {
		if it.NFT.Enabled {
			n += it.Quantity
		}
	}
	return n
}
