package payment

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokenbay/storefront/internal/access"
	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/events"
	"github.com/tokenbay/storefront/internal/merchant"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/money"
	"github.com/tokenbay/storefront/internal/nft"
	"github.com/tokenbay/storefront/internal/order"
	"github.com/tokenbay/storefront/internal/product"
)

// InstantProvider and ChainGateway are the slices of the rail clients the
// router consumes; tests stub them.
type InstantProvider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, ref string) (*Charge, error)
}

type ChainGateway interface {
	Quote(ctx context.Context, currency string, amountMinor int64, tokenSymbol string) (decimal.Decimal, error)
	SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error)
}

type MintRunner interface {
	MintForOrder(ctx context.Context, orderID, buyerWallet, contractRef string) (*nft.Summary, error)
}

type OnChainOptions struct {
	WalletAddress string
	Amount        string
	TokenSymbol   string
}

type InstantPayment struct {
	ChargeRef string      `json:"charge_ref"`
	QRCode    string      `json:"qr_code"`
	CopyPaste string      `json:"copy_paste,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
	PayoutKey string      `json:"payout_key"`
	Split     money.Split `json:"split"`
}

type OnChainPayment struct {
	TxRef        string   `json:"tx_ref"`
	Amount       string   `json:"amount"`
	TokenSymbol  string   `json:"token_symbol"`
	MintedTokens []string `json:"minted_tokens,omitempty"`
}

type Result struct {
	OrderID string              `json:"order_id"`
	Status  order.Status        `json:"status"`
	Method  order.PaymentMethod `json:"method"`
	Instant *InstantPayment     `json:"instant,omitempty"`
	OnChain *OnChainPayment     `json:"on_chain,omitempty"`
}

// Router processes payment for a pending order through exactly one rail.
type Router struct {
	Orders    order.Repository
	Merchants merchant.Repository
	Products  product.Repository
	Instant   InstantProvider
	Chain     ChainGateway
	Mint      MintRunner
	Events    events.Publisher
	Metrics   *metrics.Registry

	// DefaultPlatformPct applies when a merchant has no split configured.
	DefaultPlatformPct float64
	ChargeExpiry       time.Duration
}

func (r *Router) ProcessPayment(ctx context.Context, orderID string, method order.PaymentMethod, opts OnChainOptions) (*Result, error) {
	o, m, err := r.loadPending(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !method.Supported() {
		return nil, apperr.New(apperr.UnsupportedMethod, "unsupported payment method %q", method)
	}

	switch method {
	case order.MethodInstantPayment:
		return r.instant(ctx, o, m)
	default:
		return r.onChain(ctx, o, m, opts)
	}
}

func (r *Router) loadPending(ctx context.Context, orderID string) (*order.Order, *merchant.Merchant, error) {
	o, err := r.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, nil, apperr.NotFoundf("order %s not found", orderID)
		}
		return nil, nil, apperr.Transientf(5*time.Second, err, "load order %s failed", orderID)
	}
	if o.Status.Terminal() {
		return nil, nil, apperr.InvalidStatef("order %s is already %s", o.ID, o.Status)
	}
	if o.Status != order.StatusPending {
		return nil, nil, apperr.InvalidStatef("order %s is %s, payment requires pending", o.ID, o.Status)
	}
	m, err := r.Merchants.GetByID(ctx, o.MerchantID)
	if err != nil {
		if errors.Is(err, merchant.ErrNotFound) {
			return nil, nil, apperr.NotFoundf("merchant %s not found", o.MerchantID)
		}
		return nil, nil, apperr.Transientf(5*time.Second, err, "load merchant %s failed", o.MerchantID)
	}
	if !m.CanProcessOrders() {
		return nil, nil, apperr.New(apperr.Unavailable, "merchant %s cannot process orders", m.ID)
	}
	return o, m, nil
}

func (r *Router) instant(ctx context.Context, o *order.Order, m *merchant.Merchant) (*Result, error) {
	pct := m.SplitPercentage
	if pct == 0 {
		pct = r.DefaultPlatformPct
	}
	sp, err := money.NewSplit(o.Total, pct)
	if err != nil {
		return nil, err
	}

	// The charge covers the full total; the provider settles the split
	// against the merchant's payout key.
	ch, err := r.Instant.CreateCharge(ctx, ChargeRequest{
		AmountMinor: o.Total.AmountMinor,
		Currency:    o.Total.Currency,
		PayoutKey:   m.PayoutKey,
		Description: "Order " + o.ID,
		MerchantRef: m.ID,
		OrderRef:    o.ID,
		ExpiresIn:   r.ChargeExpiry,
	})
	if err != nil {
		// Order untouched: still pending, re-requestable.
		r.Metrics.PaymentFailures.Inc()
		return nil, err
	}

	if err := r.transition(ctx, o.ID, order.StatusPending, order.StatusPaymentPending); err != nil {
		return nil, err
	}
	if err := r.Orders.SetPaymentRef(ctx, o.ID, ch.Ref); err != nil {
		log.Printf("[payment] store charge ref for %s: %v", o.ID, err)
	}
	r.publish(ctx, events.PaymentPending, o.ID, map[string]string{"charge_ref": ch.Ref})
	r.Metrics.ChargesCreated.Inc()

	return &Result{
		OrderID: o.ID,
		Status:  order.StatusPaymentPending,
		Method:  order.MethodInstantPayment,
		Instant: &InstantPayment{
			ChargeRef: ch.Ref,
			QRCode:    ch.QRCode,
			CopyPaste: ch.CopyPaste,
			ExpiresAt: ch.ExpiresAt,
			PayoutKey: m.PayoutKey,
			Split:     sp,
		},
	}, nil
}

func (r *Router) onChain(ctx context.Context, o *order.Order, m *merchant.Merchant, opts OnChainOptions) (*Result, error) {
	if opts.WalletAddress == "" {
		return nil, apperr.Validationf("buyer wallet address is required")
	}
	if !access.ValidAddress(opts.WalletAddress) {
		return nil, apperr.Validationf("Invalid wallet address %q", opts.WalletAddress)
	}
	if opts.TokenSymbol == "" {
		return nil, apperr.Validationf("token symbol is required")
	}
	amount, err := decimal.NewFromString(opts.Amount)
	if err != nil {
		return nil, apperr.Validationf("invalid amount %q", opts.Amount)
	}
	if amount.Sign() <= 0 {
		return nil, apperr.Validationf("amount must be positive, got %s", amount)
	}

	required, err := r.Chain.Quote(ctx, o.Total.Currency, o.Total.AmountMinor, opts.TokenSymbol)
	if err != nil {
		r.Metrics.PaymentFailures.Inc()
		return nil, err
	}
	if amount.LessThan(required) {
		return nil, apperr.Validationf("amount %s %s is below the required %s %s",
			amount, opts.TokenSymbol, required, opts.TokenSymbol)
	}

	receipt, err := r.Chain.SubmitTransfer(ctx, TransferRequest{
		FromWallet:  opts.WalletAddress,
		Amount:      amount,
		TokenSymbol: opts.TokenSymbol,
		OrderRef:    o.ID,
	})
	if err != nil {
		r.Metrics.PaymentFailures.Inc()
		return nil, err
	}

	if err := r.transition(ctx, o.ID, order.StatusPending, order.StatusPaid); err != nil {
		return nil, err
	}
	if err := r.Orders.SetPaymentRef(ctx, o.ID, receipt.TxRef); err != nil {
		log.Printf("[payment] store tx ref for %s: %v", o.ID, err)
	}
	r.publish(ctx, events.OrderPaid, o.ID, map[string]string{"tx_ref": receipt.TxRef})
	r.Metrics.OnChainPayments.Inc()

	res := &Result{
		OrderID: o.ID,
		Status:  order.StatusPaid,
		Method:  order.MethodOnChain,
		OnChain: &OnChainPayment{
			TxRef:       receipt.TxRef,
			Amount:      amount.String(),
			TokenSymbol: opts.TokenSymbol,
		},
	}

	// The buyer has paid; credential issuance must not undo that. A failed
	// mint pass is logged and retried through the mint endpoint.
	if o.HasNFTItems() {
		summary, err := r.Mint.MintForOrder(ctx, o.ID, opts.WalletAddress, m.ContractRef)
		if err != nil {
			log.Printf("[payment] mint after on-chain payment for %s: %v", o.ID, err)
		} else {
			res.OnChain.MintedTokens = summary.Tokens
			res.Status = order.StatusCompleted
		}
	} else if err := r.transition(ctx, o.ID, order.StatusPaid, order.StatusCompleted); err != nil {
		log.Printf("[payment] complete tokenless order %s: %v", o.ID, err)
	} else {
		res.Status = order.StatusCompleted
	}
	return res, nil
}

// Confirm polls the provider for a payment_pending order and advances it.
func (r *Router) Confirm(ctx context.Context, orderID string) (*Result, error) {
	o, err := r.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, apperr.NotFoundf("order %s not found", orderID)
		}
		return nil, apperr.Transientf(5*time.Second, err, "load order %s failed", orderID)
	}
	if o.Status != order.StatusPaymentPending {
		return nil, apperr.InvalidStatef("order %s is %s, confirmation requires payment_pending", o.ID, o.Status)
	}

	ch, err := r.Instant.GetCharge(ctx, o.PaymentRef)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res := &Result{OrderID: o.ID, Status: o.Status, Method: order.MethodInstantPayment}
	switch ch.Status {
	case ChargePaid:
		paid, err := o.WithStatus(order.StatusPaid, now)
		if err != nil {
			return nil, err
		}
		if err := r.transition(ctx, o.ID, o.Status, paid.Status); err != nil {
			return nil, err
		}
		r.publish(ctx, events.OrderPaid, o.ID, map[string]string{"charge_ref": ch.Ref})
		res.Status = paid.Status
		// Same policy as the on-chain rail: the payment stands even when the
		// mint pass fails, and the mint endpoint retries it.
		if o.HasNFTItems() {
			if o.BuyerWallet == "" {
				log.Printf("[payment] order %s paid with no buyer wallet on file, mint deferred", o.ID)
				break
			}
			var contract string
			if m, merr := r.Merchants.GetByID(ctx, o.MerchantID); merr == nil {
				contract = m.ContractRef
			}
			if _, merr := r.Mint.MintForOrder(ctx, o.ID, o.BuyerWallet, contract); merr != nil {
				log.Printf("[payment] mint after instant payment for %s: %v", o.ID, merr)
			} else {
				res.Status = order.StatusCompleted
			}
		} else if done, derr := paid.WithStatus(order.StatusCompleted, now); derr != nil {
			log.Printf("[payment] complete tokenless order %s: %v", o.ID, derr)
		} else if err := r.transition(ctx, o.ID, paid.Status, done.Status); err != nil {
			log.Printf("[payment] complete tokenless order %s: %v", o.ID, err)
		} else {
			res.Status = done.Status
		}
	case ChargeExpired:
		expired, err := o.WithStatus(order.StatusExpired, now)
		if err != nil {
			return nil, err
		}
		if err := r.transition(ctx, o.ID, o.Status, expired.Status); err != nil {
			return nil, err
		}
		r.publish(ctx, events.OrderExpired, o.ID, nil)
		res.Status = expired.Status
	}
	return res, nil
}

// Cancel voids a pre-shipment order and restocks its lines.
func (r *Router) Cancel(ctx context.Context, orderID string) (*Result, error) {
	o, err := r.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, apperr.NotFoundf("order %s not found", orderID)
		}
		return nil, apperr.Transientf(5*time.Second, err, "load order %s failed", orderID)
	}
	// The canonical transition table only admits cancellation from pending
	// or paid.
	cancelled, err := o.WithStatus(order.StatusCancelled, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := r.transition(ctx, o.ID, o.Status, cancelled.Status); err != nil {
		return nil, err
	}
	for _, it := range o.Items {
		if err := r.Products.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
			log.Printf("[payment] restock %s x%d for %s: %v", it.ProductID, it.Quantity, o.ID, err)
		}
	}
	r.publish(ctx, events.OrderCancelled, o.ID, nil)
	return &Result{OrderID: o.ID, Status: order.StatusCancelled, Method: o.PaymentMethod}, nil
}

// Refund moves a paid order to refunded. Refunded is terminal, so a second
// call fails the status guard.
func (r *Router) Refund(ctx context.Context, orderID string) (*Result, error) {
	o, err := r.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, apperr.NotFoundf("order %s not found", orderID)
		}
		return nil, apperr.Transientf(5*time.Second, err, "load order %s failed", orderID)
	}
	refunded, err := o.WithStatus(order.StatusRefunded, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := r.transition(ctx, o.ID, o.Status, refunded.Status); err != nil {
		return nil, err
	}
	r.publish(ctx, events.OrderRefunded, o.ID, nil)
	return &Result{OrderID: o.ID, Status: order.StatusRefunded, Method: o.PaymentMethod}, nil
}

func (r *Router) transition(ctx context.Context, id string, from, to order.Status) error {
	err := r.Orders.UpdateStatus(ctx, id, from, to)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, order.ErrNotFound):
		return apperr.NotFoundf("order %s not found", id)
	case errors.Is(err, order.ErrStateConflict):
		return apperr.InvalidStatef("order %s changed state concurrently", id)
	default:
		return apperr.Transientf(5*time.Second, err, "update order %s failed", id)
	}
}

func (r *Router) publish(ctx context.Context, typ, orderID string, payload map[string]string) {
	if err := r.Events.Publish(ctx, events.Event{Type: typ, OrderID: orderID, Payload: payload}); err != nil {
		log.Printf("[payment] publish %s for %s: %v", typ, orderID, err)
	}
}
