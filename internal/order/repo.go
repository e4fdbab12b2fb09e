package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStateConflict is returned when a compare-and-swap update matched the
	// id but not the expected state. It closes the race between two writers
	// observing the same stale order.
	ErrStateConflict = errors.New("order state conflict")
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]Order, error)
	// UpdateStatus performs a conditional transition: the row is only updated
	// when its current status equals from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	SetPaymentRef(ctx context.Context, id, ref string) error
	// CommitMintedTokens records the minted token ids and completes the order
	// in one guarded update; it only succeeds on a paid order with no tokens.
	CommitMintedTokens(ctx context.Context, id string, tokens []string) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	minted, err := json.Marshal(o.MintedTokens)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (id, merchant_id, buyer_id, buyer_wallet, payment_method, status,
                        currency, subtotal_minor, shipping_minor, tax_minor, total_minor,
                        payment_ref, minted_tokens, metadata, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
  `, o.ID, o.MerchantID, o.BuyerID, o.BuyerWallet, o.PaymentMethod, o.Status,
		o.Total.Currency, o.Subtotal.AmountMinor, o.ShippingCost.AmountMinor, o.Tax.AmountMinor,
		o.Total.AmountMinor, o.PaymentRef, minted, meta); err != nil {
		return err
	}

	for _, it := range o.Items {
		nft, err := json.Marshal(it.NFT)
		if err != nil {
			return err
		}
		attrs, err := json.Marshal(it.Attributes)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (id, order_id, product_id, name, quantity,
                               unit_price_minor, total_price_minor, nft, attributes)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, it.ID, o.ID, it.ProductID, it.Name, it.Quantity,
			it.UnitPrice.AmountMinor, it.TotalPrice.AmountMinor, nft, attrs); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	var (
		o      Order
		status string
		minted []byte
		meta   []byte
	)
	err := r.db.QueryRow(ctx, `
    SELECT id, merchant_id, buyer_id, buyer_wallet, payment_method, status,
           currency, subtotal_minor, shipping_minor, tax_minor, total_minor,
           payment_ref, minted_tokens, metadata, created_at, updated_at, completed_at
    FROM orders WHERE id=$1
  `, id).Scan(&o.ID, &o.MerchantID, &o.BuyerID, &o.BuyerWallet, &o.PaymentMethod, &status,
		&o.Total.Currency, &o.Subtotal.AmountMinor, &o.ShippingCost.AmountMinor, &o.Tax.AmountMinor,
		&o.Total.AmountMinor, &o.PaymentRef, &minted, &meta, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = normalizeStatus(status)
	o.Subtotal.Currency = o.Total.Currency
	o.ShippingCost.Currency = o.Total.Currency
	o.Tax.Currency = o.Total.Currency
	if err := json.Unmarshal(minted, &o.MintedTokens); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &o.Metadata); err != nil {
			return nil, err
		}
	}

	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, product_id, name, quantity, unit_price_minor, total_price_minor, nft, attributes
    FROM order_items WHERE order_id=$1
    ORDER BY id
  `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it    LineItem
			nft   []byte
			attrs []byte
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Quantity,
			&it.UnitPrice.AmountMinor, &it.TotalPrice.AmountMinor, &nft, &attrs); err != nil {
			return nil, err
		}
		it.UnitPrice.Currency = o.Total.Currency
		it.TotalPrice.Currency = o.Total.Currency
		if len(nft) > 0 {
			if err := json.Unmarshal(nft, &it.NFT); err != nil {
				return nil, err
			}
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &it.Attributes); err != nil {
				return nil, err
			}
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
    SELECT id, merchant_id, buyer_id, buyer_wallet, payment_method, status,
           currency, subtotal_minor, shipping_minor, tax_minor, total_minor,
           payment_ref, minted_tokens, created_at, updated_at, completed_at
    FROM orders WHERE buyer_id=$1
    ORDER BY created_at DESC LIMIT $2 OFFSET $3
  `, buyerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var (
			o      Order
			status string
			minted []byte
		)
		if err := rows.Scan(&o.ID, &o.MerchantID, &o.BuyerID, &o.BuyerWallet, &o.PaymentMethod, &status,
			&o.Total.Currency, &o.Subtotal.AmountMinor, &o.ShippingCost.AmountMinor, &o.Tax.AmountMinor,
			&o.Total.AmountMinor, &o.PaymentRef, &minted, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt); err != nil {
			return nil, err
		}
		o.Status = normalizeStatus(status)
		o.Subtotal.Currency = o.Total.Currency
		o.ShippingCost.Currency = o.Total.Currency
		o.Tax.Currency = o.Total.Currency
		if err := json.Unmarshal(minted, &o.MintedTokens); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET status = $3, updated_at = NOW()
    WHERE id = $1 AND status = $2
  `, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

func (r *PGRepo) SetPaymentRef(ctx context.Context, id, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET payment_ref = $2, updated_at = NOW() WHERE id = $1
  `, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) CommitMintedTokens(ctx context.Context, id string, tokens []string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	minted, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET minted_tokens = $2, status = $3, completed_at = NOW(), updated_at = NOW()
    WHERE id = $1 AND status = $4 AND minted_tokens = '[]'::jsonb
  `, id, minted, StatusCompleted, StatusPaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// normalizeStatus folds legacy vocabulary still present in stored rows into
// the canonical set.
func normalizeStatus(s string) Status {
	if st, ok := ParseStatus(s); ok {
		return st
	}
	return Status(s)
}

func (r *PGRepo) conflictOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}
