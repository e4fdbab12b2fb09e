// Package product provides the catalog repository consumed by the order
// assembler and the cancellation restock path.
package product

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// scanErr maps an absent row to ErrNotFound and lets everything else (driver
// and network failures) propagate so callers can treat it as transient.
func scanErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type Query struct {
	Q          string
	MerchantID string
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, q Query) ([]Product, error)
	Update(ctx context.Context, p *Product, updatePrice bool) error
	// AdjustStock adds delta (negative to reserve, positive to restock) in a
	// single guarded UPDATE so concurrent orders cannot oversell.
	AdjustStock(ctx context.Context, id string, delta int) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	nft, err := json.Marshal(p.NFT)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO products (id, merchant_id, name, description, price_minor, currency,
		                      stock, track_stock, active, nft, attributes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
	`, p.ID, p.MerchantID, p.Name, p.Description, p.Price.AmountMinor, p.Price.Currency,
		p.Stock, p.TrackStock, p.Active, nft, attrs)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		p     Product
		nft   []byte
		attrs []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, merchant_id, name, description, price_minor, currency,
		       stock, track_stock, active, nft, attributes, created_at, updated_at
		FROM products WHERE id=$1
	`, id).Scan(&p.ID, &p.MerchantID, &p.Name, &p.Description, &p.Price.AmountMinor, &p.Price.Currency,
		&p.Stock, &p.TrackStock, &p.Active, &nft, &attrs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	if len(nft) > 0 {
		if err := json.Unmarshal(nft, &p.NFT); err != nil {
			return nil, err
		}
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	search := strings.TrimSpace(q.Q)

	rows, err := r.db.Query(ctx, `
		SELECT id, merchant_id, name, description, price_minor, currency,
		       stock, track_stock, active, nft, attributes, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%' OR description ILIKE '%'||$1||'%')
		  AND ($2 = '' OR merchant_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, search, q.MerchantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var (
			p     Product
			nft   []byte
			attrs []byte
		)
		if err := rows.Scan(&p.ID, &p.MerchantID, &p.Name, &p.Description, &p.Price.AmountMinor, &p.Price.Currency,
			&p.Stock, &p.TrackStock, &p.Active, &nft, &attrs, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if len(nft) > 0 {
			if err := json.Unmarshal(nft, &p.NFT); err != nil {
				return nil, err
			}
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepo) Update(ctx context.Context, p *Product, updatePrice bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	nft, err := json.Marshal(p.NFT)
	if err != nil {
		return err
	}
	if updatePrice {
		_, err := r.db.Exec(ctx, `
			UPDATE products
			SET name = COALESCE(NULLIF($2,''), name),
			    description = COALESCE(NULLIF($3,''), description),
			    price_minor = $4,
			    currency = $5,
			    stock = $6,
			    active = $7,
			    nft = $8,
			    updated_at = NOW()
			WHERE id = $1
		`, p.ID, p.Name, p.Description, p.Price.AmountMinor, p.Price.Currency, p.Stock, p.Active, nft)
		return err
	}

	_, err = r.db.Exec(ctx, `
		UPDATE products
		SET name = COALESCE(NULLIF($2,''), name),
		    description = COALESCE(NULLIF($3,''), description),
		    stock = $4,
		    active = $5,
		    nft = $6,
		    updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Stock, p.Active, nft)
	return err
}

func (r *PGRepo) AdjustStock(ctx context.Context, id string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND (NOT track_stock OR stock + $2 >= 0)
	`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a guard rejection.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}
