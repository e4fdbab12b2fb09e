package merchant

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound     = errors.New("merchant not found")
	ErrAlreadyExist = errors.New("merchant already exists")
)

// scanErr maps an absent row to ErrNotFound; driver and network failures
// propagate so callers can treat them as transient.
func scanErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// insertErr maps a unique violation to ErrAlreadyExist.
func insertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExist
	}
	return err
}

type Repository interface {
	Create(ctx context.Context, m *Merchant) error
	GetByID(ctx context.Context, id string) (*Merchant, error)
	GetByContractRef(ctx context.Context, contractRef string) (*Merchant, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, m *Merchant) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO merchants (id, name, contract_ref, payout_key, split_percentage, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
	`, m.ID, m.Name, m.ContractRef, m.PayoutKey, m.SplitPercentage, m.Active)
	if err != nil {
		// UNIQUE on id/contract_ref
		return insertErr(err)
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Merchant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT id, name, contract_ref, payout_key, split_percentage, active, created_at, updated_at
		FROM merchants WHERE id=$1
	`, id)
	var m Merchant
	if err := row.Scan(&m.ID, &m.Name, &m.ContractRef, &m.PayoutKey, &m.SplitPercentage, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &m, nil
}

func (r *PGRepo) GetByContractRef(ctx context.Context, contractRef string) (*Merchant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT id, name, contract_ref, payout_key, split_percentage, active, created_at, updated_at
		FROM merchants WHERE contract_ref=$1
	`, contractRef)
	var m Merchant
	if err := row.Scan(&m.ID, &m.Name, &m.ContractRef, &m.PayoutKey, &m.SplitPercentage, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &m, nil
}

func (r *PGRepo) SetActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE merchants SET active = $2, updated_at = NOW() WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
