package nft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/events"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/order"
)

// Minter is the slice of the minting client fulfillment needs.
type Minter interface {
	Mint(ctx context.Context, contractRef, recipient string, meta TokenMetadata) (string, error)
}

type MintResult struct {
	ProductID   string `json:"product_id"`
	ContractRef string `json:"contract_ref"`
	TokenID     string `json:"token_id,omitempty"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

type Summary struct {
	OrderID     string       `json:"order_id"`
	BuyerWallet string       `json:"buyer_wallet"`
	Tokens      []string     `json:"tokens"`
	Results     []MintResult `json:"results"`
	CompletedAt time.Time    `json:"completed_at"`
}

// Fulfillment mints one credential token per unit of every NFT-eligible line
// of a paid order. The batch is all-or-nothing: a single failed mint call
// discards the whole pass and leaves the order untouched.
type Fulfillment struct {
	Orders  order.Repository
	Minter  Minter
	Events  events.Publisher
	Metrics *metrics.Registry
}

func NewFulfillment(orders order.Repository, minter Minter, pub events.Publisher, m *metrics.Registry) *Fulfillment {
	return &Fulfillment{Orders: orders, Minter: minter, Events: pub, Metrics: m}
}

type mintJob struct {
	productID   string
	contractRef string
	meta        TokenMetadata
}

func (f *Fulfillment) MintForOrder(ctx context.Context, orderID, buyerWallet, contractRef string) (*Summary, error) {
	if orderID == "" {
		return nil, apperr.Validationf("order id is required")
	}
	if buyerWallet == "" {
		return nil, apperr.Validationf("buyer wallet is required")
	}
	if contractRef == "" {
		return nil, apperr.Validationf("contract reference is required")
	}

	o, err := f.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, apperr.NotFoundf("order %s not found", orderID)
		}
		return nil, apperr.Transientf(5*time.Second, err, "load order %s failed", orderID)
	}
	// The order model owns mint eligibility: AlreadyMinted for a fulfilled
	// order, InvalidState for anything not paid.
	if _, err := o.WithMintedTokens(nil, time.Now().UTC()); err != nil {
		return nil, err
	}

	jobs := f.buildJobs(o, contractRef)
	if len(jobs) == 0 {
		return nil, apperr.Validationf("order %s has no NFT-eligible line items", o.ID)
	}

	// Fan out one call per token, then join the whole batch before touching
	// any state.
	start := time.Now()
	results := make([]MintResult, len(jobs))
	errs := make([]error, len(jobs))
	tokens := make([]string, len(jobs))
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job := jobs[i]
			tokenID, err := f.Minter.Mint(ctx, job.contractRef, buyerWallet, job.meta)
			if err != nil {
				errs[i] = err
				results[i] = MintResult{ProductID: job.productID, ContractRef: job.contractRef, Error: err.Error()}
				return
			}
			tokens[i] = tokenID
			results[i] = MintResult{ProductID: job.productID, ContractRef: job.contractRef, TokenID: tokenID, Success: true}
		}(i)
	}
	wg.Wait()
	f.Metrics.MintBatchSec.Observe(time.Since(start).Seconds())

	for i := range errs {
		if errs[i] != nil {
			f.Metrics.MintBatchFailures.Inc()
			if _, ok := apperr.KindOf(errs[i]); ok {
				return nil, errs[i]
			}
			return nil, apperr.Transientf(10*time.Second, errs[i],
				"mint %d of %d failed for order %s", i+1, len(jobs), o.ID)
		}
	}

	now := time.Now().UTC()
	completed, err := o.WithMintedTokens(tokens, now)
	if err != nil {
		return nil, err
	}
	// Minting is the source of truth; the persisted sync is best-effort. The
	// guarded update also closes the concurrent double-mint window.
	if err := f.Orders.CommitMintedTokens(ctx, o.ID, completed.MintedTokens); err != nil {
		log.Printf("[nft] commit minted tokens for %s: %v", o.ID, err)
	}
	if err := f.Events.Publish(ctx, events.Event{
		Type: events.OrderCompleted, OrderID: o.ID, At: now,
		Payload: map[string]string{"tokens": fmt.Sprint(len(tokens))},
	}); err != nil {
		log.Printf("[nft] publish %s for %s: %v", events.OrderCompleted, o.ID, err)
	}
	f.Metrics.TokensMinted.Add(float64(len(tokens)))

	return &Summary{
		OrderID:     o.ID,
		BuyerWallet: buyerWallet,
		Tokens:      tokens,
		Results:     results,
		CompletedAt: now,
	}, nil
}

func (f *Fulfillment) buildJobs(o *order.Order, fallbackContract string) []mintJob {
	var jobs []mintJob
	for _, it := range o.Items {
		if !it.NFT.Enabled {
			continue
		}
		contract := it.NFT.CollectionRef
		if contract == "" {
			contract = fallbackContract
		}
		for unit := 1; unit <= it.Quantity; unit++ {
			attrs := map[string]string{
				"order_id":     o.ID,
				"product_id":   it.ProductID,
				"merchant_id":  o.MerchantID,
				"purchased_at": o.CreatedAt.Format(time.RFC3339),
				"unit":         fmt.Sprintf("%d/%d", unit, it.Quantity),
			}
			for k, v := range it.Attributes {
				attrs[k] = v
			}
			jobs = append(jobs, mintJob{
				productID:   it.ProductID,
				contractRef: contract,
				meta: TokenMetadata{
					Name:        fmt.Sprintf("%s #%d", it.Name, unit),
					Description: fmt.Sprintf("Purchase credential for %s", it.Name),
					Image:       it.Attributes["image"],
					Attributes:  attrs,
				},
			})
		}
	}
	return jobs
}
