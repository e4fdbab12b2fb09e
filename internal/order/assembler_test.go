package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/events"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/money"
	"github.com/tokenbay/storefront/internal/product"
)

// stubRepo implements Repository in memory.
type stubRepo struct {
	orders map[string]*Order
}

func newStubRepo() *stubRepo { return &stubRepo{orders: map[string]*Order{}} }

func (s *stubRepo) Create(_ context.Context, o *Order) error {
	cp := o.clone()
	s.orders[o.ID] = &cp
	return nil
}

func (s *stubRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o.clone()
	return &cp, nil
}

func (s *stubRepo) ListByBuyer(_ context.Context, buyerID string, _, _ int) ([]Order, error) {
	var out []Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, o.clone())
		}
	}
	return out, nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, id string, from, to Status) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStateConflict
	}
	o.Status = to
	return nil
}

func (s *stubRepo) SetPaymentRef(_ context.Context, id, ref string) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentRef = ref
	return nil
}

func (s *stubRepo) CommitMintedTokens(_ context.Context, id string, tokens []string) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPaid || len(o.MintedTokens) > 0 {
		return ErrStateConflict
	}
	o.MintedTokens = append([]string(nil), tokens...)
	o.Status = StatusCompleted
	return nil
}

// stubCatalog implements Catalog in memory.
type stubCatalog struct {
	products map[string]*product.Product
}

func (s *stubCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func catalogWith(ps ...*product.Product) *stubCatalog {
	c := &stubCatalog{products: map[string]*product.Product{}}
	for _, p := range ps {
		c.products[p.ID] = p
	}
	return c
}

func prod(id string, priceMinor int64, stock int) *product.Product {
	return &product.Product{
		ID:         id,
		MerchantID: "m1",
		Name:       "Product " + id,
		Price:      money.Money{AmountMinor: priceMinor, Currency: "BRL"},
		Stock:      stock,
		TrackStock: true,
		Active:     true,
	}
}

func newAssembler(repo Repository, catalog Catalog) *Assembler {
	return NewAssembler(repo, catalog, events.Noop{}, metrics.NewRegistry())
}

func TestAssemble_TwoLines(t *testing.T) {
	repo := newStubRepo()
	asm := newAssembler(repo, catalogWith(prod("pA", 10000, 5), prod("pB", 5000, 5)))

	o, err := asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1",
		BuyerID:    "b1",
		Lines: []LineRequest{
			{ProductID: "pA", Quantity: 2},
			{ProductID: "pB", Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(25000), o.Subtotal.AmountMinor)
	assert.Equal(t, int64(25000), o.Total.AmountMinor)

	var lineSum int64
	for _, it := range o.Items {
		lineSum += it.TotalPrice.AmountMinor
	}
	assert.Equal(t, o.Total.AmountMinor, lineSum)

	persisted, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, persisted.Items, 2)
	assert.Empty(t, persisted.MintedTokens)
}

func TestAssemble_SnapshotsPriceAndNFT(t *testing.T) {
	p := prod("pA", 19990, 3)
	p.NFT = product.NFTDescriptor{Enabled: true, TokenStandard: "ERC-721", CollectionRef: "0xcafe"}
	p.Attributes = map[string]string{"image": "https://cdn/img.png"}
	asm := newAssembler(newStubRepo(), catalogWith(p))

	o, err := asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1", BuyerID: "b1",
		Lines: []LineRequest{{ProductID: "pA", Quantity: 1}},
	})
	require.NoError(t, err)

	it := o.Items[0]
	assert.Equal(t, int64(19990), it.UnitPrice.AmountMinor)
	assert.True(t, it.NFT.Enabled)
	assert.Equal(t, "0xcafe", it.NFT.CollectionRef)

	// Later catalog edits must not leak into the snapshot.
	p.Price.AmountMinor = 1
	p.Attributes["image"] = "changed"
	assert.Equal(t, int64(19990), it.UnitPrice.AmountMinor)
	assert.Equal(t, "https://cdn/img.png", it.Attributes["image"])
}

func TestAssemble_Validation(t *testing.T) {
	asm := newAssembler(newStubRepo(), catalogWith(prod("pA", 100, 5)))
	line := []LineRequest{{ProductID: "pA", Quantity: 1}}

	cases := []struct {
		name string
		req  AssembleRequest
	}{
		{"missing merchant", AssembleRequest{BuyerID: "b1", Lines: line}},
		{"missing buyer", AssembleRequest{MerchantID: "m1", Lines: line}},
		{"no lines", AssembleRequest{MerchantID: "m1", BuyerID: "b1"}},
		{"zero quantity", AssembleRequest{MerchantID: "m1", BuyerID: "b1", Lines: []LineRequest{{ProductID: "pA", Quantity: 0}}}},
		{"negative quantity", AssembleRequest{MerchantID: "m1", BuyerID: "b1", Lines: []LineRequest{{ProductID: "pA", Quantity: -2}}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := asm.Assemble(context.Background(), c.req)
			assert.True(t, apperr.IsKind(err, apperr.Validation), "got %v", err)
		})
	}
}

func TestAssemble_ProductErrors(t *testing.T) {
	inactive := prod("pOff", 100, 5)
	inactive.Active = false
	asm := newAssembler(newStubRepo(), catalogWith(prod("pA", 100, 1), inactive))

	_, err := asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1", BuyerID: "b1",
		Lines: []LineRequest{{ProductID: "missing", Quantity: 1}},
	})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1", BuyerID: "b1",
		Lines: []LineRequest{{ProductID: "pOff", Quantity: 1}},
	})
	assert.True(t, apperr.IsKind(err, apperr.Unavailable))

	_, err = asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1", BuyerID: "b1",
		Lines: []LineRequest{{ProductID: "pA", Quantity: 2}},
	})
	assert.True(t, apperr.IsKind(err, apperr.InsufficientStock))
}

func TestAssemble_UnsupportedMethod(t *testing.T) {
	asm := newAssembler(newStubRepo(), catalogWith(prod("pA", 100, 5)))
	_, err := asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1", BuyerID: "b1", PaymentMethod: "card",
		Lines: []LineRequest{{ProductID: "pA", Quantity: 1}},
	})
	assert.True(t, apperr.IsKind(err, apperr.UnsupportedMethod))
}

func TestAssemble_ShippingAndTax(t *testing.T) {
	asm := newAssembler(newStubRepo(), catalogWith(prod("pA", 10000, 5), prod("pB", 5000, 5)))

	o, err := asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1",
		BuyerID:    "b1",
		Lines: []LineRequest{
			{ProductID: "pA", Quantity: 2},
			{ProductID: "pB", Quantity: 1},
		},
		ShippingMinor: 1500,
		TaxMinor:      300,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(25000), o.Subtotal.AmountMinor)
	assert.Equal(t, int64(1500), o.ShippingCost.AmountMinor)
	assert.Equal(t, int64(300), o.Tax.AmountMinor)
	assert.Equal(t, int64(26800), o.Total.AmountMinor)
	assert.Equal(t, o.Subtotal.AmountMinor+o.ShippingCost.AmountMinor+o.Tax.AmountMinor,
		o.Total.AmountMinor)

	_, err = asm.Assemble(context.Background(), AssembleRequest{
		MerchantID: "m1", BuyerID: "b1",
		Lines:         []LineRequest{{ProductID: "pA", Quantity: 1}},
		ShippingMinor: -1,
	})
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestAssemble_ManyLinesSumProperty(t *testing.T) {
	var ps []*product.Product
	var lines []LineRequest
	var want int64
	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("p%d", i)
		price := int64(i * 137)
		ps = append(ps, prod(id, price, 10))
		lines = append(lines, LineRequest{ProductID: id, Quantity: i})
		want += price * int64(i)
	}
	asm := newAssembler(newStubRepo(), catalogWith(ps...))

	o, err := asm.Assemble(context.Background(), AssembleRequest{MerchantID: "m1", BuyerID: "b1", Lines: lines})
	require.NoError(t, err)
	assert.Equal(t, want, o.Total.AmountMinor)
}
