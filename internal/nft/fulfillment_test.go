package nft

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/events"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/money"
	"github.com/tokenbay/storefront/internal/order"
	"github.com/tokenbay/storefront/internal/product"
)

// stubOrders implements order.Repository in memory with the same CAS
// semantics as the Postgres repo.
type stubOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newStubOrders(os ...*order.Order) *stubOrders {
	s := &stubOrders{orders: map[string]*order.Order{}}
	for _, o := range os {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubOrders) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *stubOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	cp.MintedTokens = append([]string(nil), o.MintedTokens...)
	return &cp, nil
}

func (s *stubOrders) ListByBuyer(context.Context, string, int, int) ([]order.Order, error) {
	return nil, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStateConflict
	}
	o.Status = to
	return nil
}

func (s *stubOrders) SetPaymentRef(_ context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentRef = ref
	return nil
}

func (s *stubOrders) CommitMintedTokens(_ context.Context, id string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != order.StatusPaid || len(o.MintedTokens) > 0 {
		return order.ErrStateConflict
	}
	o.MintedTokens = append([]string(nil), tokens...)
	o.Status = order.StatusCompleted
	return nil
}

// stubMinter counts calls and can fail from a given call number on.
type stubMinter struct {
	mu        sync.Mutex
	calls     int
	failFrom  int // 0 = never fail
	lastMetas []TokenMetadata
}

func (m *stubMinter) Mint(_ context.Context, contractRef, recipient string, meta TokenMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastMetas = append(m.lastMetas, meta)
	if m.failFrom > 0 && m.calls >= m.failFrom {
		return "", apperr.Transientf(0, fmt.Errorf("rpc timeout"), "mint rejected by chain")
	}
	return fmt.Sprintf("tok-%d", m.calls), nil
}

func paidOrder() *order.Order {
	return &order.Order{
		ID:         "o1",
		MerchantID: "m1",
		BuyerID:    "b1",
		Status:     order.StatusPaid,
		Items: []order.LineItem{
			{
				ID: "i1", OrderID: "o1", ProductID: "pA", Name: "Concert Pass", Quantity: 2,
				UnitPrice:  money.Money{AmountMinor: 10000, Currency: "BRL"},
				TotalPrice: money.Money{AmountMinor: 20000, Currency: "BRL"},
				NFT:        product.NFTDescriptor{Enabled: true, TokenStandard: "ERC-721", CollectionRef: "0xcafe"},
				Attributes: map[string]string{"access_level": "vip"},
			},
			{
				ID: "i2", OrderID: "o1", ProductID: "pB", Name: "Sticker", Quantity: 1,
				UnitPrice:  money.Money{AmountMinor: 5000, Currency: "BRL"},
				TotalPrice: money.Money{AmountMinor: 5000, Currency: "BRL"},
			},
		},
		Subtotal:     money.Money{AmountMinor: 25000, Currency: "BRL"},
		Total:        money.Money{AmountMinor: 25000, Currency: "BRL"},
		MintedTokens: []string{},
	}
}

const wallet = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

func newFulfillment(repo order.Repository, m Minter) *Fulfillment {
	return NewFulfillment(repo, m, events.Noop{}, metrics.NewRegistry())
}

func TestMintForOrder_QuantityAware(t *testing.T) {
	repo := newStubOrders(paidOrder())
	minter := &stubMinter{}
	f := newFulfillment(repo, minter)

	summary, err := f.MintForOrder(context.Background(), "o1", wallet, "0xfallback")
	require.NoError(t, err)

	// Two units of the eligible line, none for the sticker.
	assert.Len(t, summary.Tokens, 2)
	assert.Equal(t, 2, minter.calls)
	for _, res := range summary.Results {
		assert.True(t, res.Success)
		assert.Equal(t, "pA", res.ProductID)
		assert.Equal(t, "0xcafe", res.ContractRef)
	}

	o, err := repo.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.Equal(t, summary.Tokens, o.MintedTokens)
}

func TestMintForOrder_MetadataCarriesProvenance(t *testing.T) {
	repo := newStubOrders(paidOrder())
	minter := &stubMinter{}
	f := newFulfillment(repo, minter)

	_, err := f.MintForOrder(context.Background(), "o1", wallet, "0xfallback")
	require.NoError(t, err)

	require.Len(t, minter.lastMetas, 2)
	for _, meta := range minter.lastMetas {
		assert.Equal(t, "o1", meta.Attributes["order_id"])
		assert.Equal(t, "pA", meta.Attributes["product_id"])
		assert.Equal(t, "m1", meta.Attributes["merchant_id"])
		assert.Equal(t, "vip", meta.Attributes["access_level"])
		assert.NotEmpty(t, meta.Attributes["purchased_at"])
	}
}

func TestMintForOrder_AllOrNothing(t *testing.T) {
	repo := newStubOrders(paidOrder())
	minter := &stubMinter{failFrom: 2}
	f := newFulfillment(repo, minter)

	_, err := f.MintForOrder(context.Background(), "o1", wallet, "0xfallback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mint rejected by chain")

	// Nothing committed; the order is still paid and re-mintable.
	o, gerr := repo.GetByID(context.Background(), "o1")
	require.NoError(t, gerr)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Empty(t, o.MintedTokens)
}

func TestMintForOrder_Idempotent(t *testing.T) {
	repo := newStubOrders(paidOrder())
	f := newFulfillment(repo, &stubMinter{})

	_, err := f.MintForOrder(context.Background(), "o1", wallet, "0xfallback")
	require.NoError(t, err)

	_, err = f.MintForOrder(context.Background(), "o1", wallet, "0xfallback")
	assert.True(t, apperr.IsKind(err, apperr.AlreadyMinted), "got %v", err)
}

func TestMintForOrder_Guards(t *testing.T) {
	pending := paidOrder()
	pending.ID = "o2"
	pending.Status = order.StatusPending
	repo := newStubOrders(paidOrder(), pending)
	f := newFulfillment(repo, &stubMinter{})
	ctx := context.Background()

	_, err := f.MintForOrder(ctx, "", wallet, "0xcafe")
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	_, err = f.MintForOrder(ctx, "o1", "", "0xcafe")
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	_, err = f.MintForOrder(ctx, "o1", wallet, "")
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	_, err = f.MintForOrder(ctx, "missing", wallet, "0xcafe")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = f.MintForOrder(ctx, "o2", wallet, "0xcafe")
	assert.True(t, apperr.IsKind(err, apperr.InvalidState))
}

func TestMintForOrder_NoEligibleItems(t *testing.T) {
	o := paidOrder()
	o.Items[0].NFT.Enabled = false
	repo := newStubOrders(o)
	f := newFulfillment(repo, &stubMinter{})

	_, err := f.MintForOrder(context.Background(), "o1", wallet, "0xcafe")
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}
