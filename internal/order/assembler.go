package order

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/events"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/money"
	"github.com/tokenbay/storefront/internal/product"
)

// Catalog is the slice of the product repository the assembler needs.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

type LineRequest struct {
	ProductID string
	Quantity  int
}

type AssembleRequest struct {
	MerchantID    string
	BuyerID       string
	PaymentMethod PaymentMethod
	BuyerWallet   string
	Lines         []LineRequest
	// ShippingMinor and TaxMinor are optional charges in the order currency.
	ShippingMinor int64
	TaxMinor      int64
	Metadata      map[string]string
}

// Assembler turns a cart into a priced, persisted pending order. It never
// touches payment or minting.
type Assembler struct {
	Orders  Repository
	Catalog Catalog
	Events  events.Publisher
	Metrics *metrics.Registry
}

func NewAssembler(orders Repository, catalog Catalog, pub events.Publisher, m *metrics.Registry) *Assembler {
	return &Assembler{Orders: orders, Catalog: catalog, Events: pub, Metrics: m}
}

func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*Order, error) {
	if req.MerchantID == "" {
		return nil, apperr.Validationf("merchant id is required")
	}
	if req.BuyerID == "" {
		return nil, apperr.Validationf("buyer id is required")
	}
	if len(req.Lines) == 0 {
		return nil, apperr.Validationf("at least one line item is required")
	}
	if req.ShippingMinor < 0 || req.TaxMinor < 0 {
		return nil, apperr.Validationf("shipping and tax must not be negative")
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.Supported() {
		return nil, apperr.New(apperr.UnsupportedMethod, "unsupported payment method %q", req.PaymentMethod)
	}

	now := time.Now().UTC()
	orderID := uuid.NewString()

	var (
		items    []LineItem
		subtotal money.Money
	)
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return nil, apperr.Validationf("quantity must be a positive integer, got %d", line.Quantity)
		}
		p, err := a.Catalog.GetByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, apperr.NotFoundf("product %s not found", line.ProductID)
			}
			return nil, apperr.Transientf(5*time.Second, err, "catalog lookup for %s failed", line.ProductID)
		}
		if !p.Active {
			return nil, apperr.New(apperr.Unavailable, "product %s is not available", p.ID)
		}
		if p.TrackStock && p.Stock < line.Quantity {
			return nil, apperr.New(apperr.InsufficientStock,
				"product %s has %d in stock, %d requested", p.ID, p.Stock, line.Quantity)
		}

		lineTotal, err := p.Price.MulInt(line.Quantity)
		if err != nil {
			return nil, err
		}
		if subtotal.Currency == "" {
			subtotal = money.Zero(p.Price.Currency)
		}
		subtotal, err = subtotal.Add(lineTotal)
		if err != nil {
			return nil, err
		}

		attrs := make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			attrs[k] = v
		}
		items = append(items, LineItem{
			ID:         uuid.NewString(),
			OrderID:    orderID,
			ProductID:  p.ID,
			Name:       p.Name,
			Quantity:   line.Quantity,
			UnitPrice:  p.Price,
			TotalPrice: lineTotal,
			NFT:        p.NFT,
			Attributes: attrs,
		})
	}

	o := &Order{
		ID:            orderID,
		MerchantID:    req.MerchantID,
		BuyerID:       req.BuyerID,
		BuyerWallet:   req.BuyerWallet,
		PaymentMethod: req.PaymentMethod,
		Status:        StatusPending,
		Items:         items,
		Subtotal:      subtotal,
		ShippingCost:  money.Zero(subtotal.Currency),
		Tax:           money.Zero(subtotal.Currency),
		// The total starts at the subtotal; requested shipping and tax are
		// layered on below, preserving the total identity.
		Total:        subtotal,
		MintedTokens: []string{},
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.ShippingMinor > 0 || req.TaxMinor > 0 {
		withCharges, err := o.WithShipping(
			money.Money{AmountMinor: req.ShippingMinor, Currency: subtotal.Currency},
			money.Money{AmountMinor: req.TaxMinor, Currency: subtotal.Currency},
		)
		if err != nil {
			return nil, err
		}
		o = &withCharges
	}
	if err := a.Orders.Create(ctx, o); err != nil {
		return nil, apperr.Transientf(5*time.Second, err, "persist order %s failed", o.ID)
	}

	if err := a.Events.Publish(ctx, events.Event{Type: events.OrderCreated, OrderID: o.ID, At: now}); err != nil {
		log.Printf("[order] publish %s for %s: %v", events.OrderCreated, o.ID, err)
	}
	a.Metrics.OrdersAssembled.Inc()
	return o, nil
}
