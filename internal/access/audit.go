package access

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAuditNotFound = errors.New("audit entry not found")

// AuditEntry records one access decision. Writing it is part of the
// validation contract, not an optional side effect.
type AuditEntry struct {
	ID              string            `json:"id"`
	Wallet          string            `json:"wallet"`
	ContractRef     string            `json:"contract_ref"`
	Action          string            `json:"action"`
	Granted         bool              `json:"granted"`
	MatchedMetadata map[string]string `json:"matched_metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type AuditRepo interface {
	Record(ctx context.Context, e *AuditEntry) error
	ListByWallet(ctx context.Context, wallet string, limit, offset int) ([]AuditEntry, error)
}

type PGAudit struct{ db *pgxpool.Pool }

func NewPGAudit(db *pgxpool.Pool) *PGAudit { return &PGAudit{db: db} }

func (r *PGAudit) Record(ctx context.Context, e *AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	meta, err := json.Marshal(e.MatchedMetadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO access_audit (id, wallet, contract_ref, action, granted, matched_metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
	`, e.ID, e.Wallet, e.ContractRef, e.Action, e.Granted, meta)
	return err
}

func (r *PGAudit) ListByWallet(ctx context.Context, wallet string, limit, offset int) ([]AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, wallet, contract_ref, action, granted, matched_metadata, created_at
		FROM access_audit WHERE wallet=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, wallet, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e    AuditEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.Wallet, &e.ContractRef, &e.Action, &e.Granted, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.MatchedMetadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
