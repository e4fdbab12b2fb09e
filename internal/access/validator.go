package access

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/merchant"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/nft"
)

const (
	actionChallenge = "challenge_issued"
	actionCheck     = "access_check"
)

// TokenReader is the slice of the minting client the validator needs.
type TokenReader interface {
	OwnedTokens(ctx context.Context, wallet, contractRef string) ([]nft.Token, error)
	MintedTo(ctx context.Context, wallet, contractRef string) ([]string, error)
}

type Request struct {
	Wallet        string `json:"wallet"`
	ContractRef   string `json:"contract_ref,omitempty"`
	MerchantID    string `json:"merchant_id,omitempty"`
	Challenge     string `json:"challenge,omitempty"`
	Signature     string `json:"signature,omitempty"`
	RequiredLevel string `json:"required_level,omitempty"`
}

type Result struct {
	Granted       bool              `json:"granted"`
	Wallet        string            `json:"wallet"`
	ContractRef   string            `json:"contract_ref,omitempty"`
	Challenge     string            `json:"challenge,omitempty"`
	MatchedTokens []string          `json:"matched_tokens,omitempty"`
	Matched       map[string]string `json:"matched_metadata,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	CheckedAt     time.Time         `json:"checked_at"`
}

// Validator grants or denies token-gated access for a wallet.
type Validator struct {
	Merchants merchant.Repository
	Tokens    TokenReader
	Verify    SignatureVerifier
	Audit     AuditRepo
	Metrics   *metrics.Registry
}

func NewValidator(merchants merchant.Repository, tokens TokenReader, verify SignatureVerifier, audit AuditRepo, m *metrics.Registry) *Validator {
	return &Validator{Merchants: merchants, Tokens: tokens, Verify: verify, Audit: audit, Metrics: m}
}

// NewChallenge builds a stateless challenge for wallet to sign. The embedded
// timestamp lets callers enforce their own replay window.
func NewChallenge(wallet string) string {
	return fmt.Sprintf("storefront-access:%s:%s:%d", NormalizeAddress(wallet), uuid.NewString(), time.Now().Unix())
}

// Validate runs the two-phase handshake: without a signature it issues a
// challenge; with one it verifies the signature and checks token ownership
// against the target contract. Every decision is audited.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	now := time.Now().UTC()
	if !ValidAddress(req.Wallet) {
		return nil, apperr.Validationf("Invalid wallet address %q", req.Wallet)
	}

	// Phase one: no signature yet, hand back something to sign.
	if req.Signature == "" {
		challenge := req.Challenge
		if challenge == "" {
			challenge = NewChallenge(req.Wallet)
		}
		v.audit(ctx, req.Wallet, "", actionChallenge, false, nil)
		return &Result{Wallet: req.Wallet, Challenge: challenge, CheckedAt: now}, nil
	}

	if req.Challenge == "" {
		return nil, apperr.Validationf("challenge is required when a signature is supplied")
	}
	if !strings.Contains(req.Challenge, NormalizeAddress(req.Wallet)) {
		return nil, apperr.Signaturef("challenge was issued for a different wallet")
	}
	if err := v.Verify.VerifyPersonalSign(req.Wallet, req.Challenge, req.Signature); err != nil {
		v.audit(ctx, req.Wallet, "", actionCheck, false, map[string]string{"reason": "signature_rejected"})
		v.Metrics.AccessDenied.Inc()
		return nil, err
	}

	contractRef, err := v.resolveContract(ctx, req)
	if err != nil {
		return nil, err
	}

	tokens, err := v.Tokens.OwnedTokens(ctx, req.Wallet, contractRef)
	if err != nil {
		if apperr.IsKind(err, apperr.Transient) {
			return nil, err
		}
		return nil, apperr.Transientf(10*time.Second, err, "ownership query for %s failed", req.Wallet)
	}

	if len(tokens) == 0 {
		reason := "no tokens held"
		kind := apperr.AccessDenied
		// A wallet that was minted to but holds nothing has transferred its
		// credential away; callers distinguish that from never-owned.
		minted, mintedErr := v.Tokens.MintedTo(ctx, req.Wallet, contractRef)
		if mintedErr == nil && len(minted) > 0 {
			reason = "credential transferred away"
			kind = apperr.Transferred
		}
		v.audit(ctx, req.Wallet, contractRef, actionCheck, false, map[string]string{"reason": reason})
		v.Metrics.AccessDenied.Inc()
		return &Result{Wallet: req.Wallet, ContractRef: contractRef, Reason: reason, CheckedAt: now},
			apperr.New(kind, "access denied for %s: %s", req.Wallet, reason)
	}

	matchedTokens, matchedMeta := matchLevel(tokens, req.RequiredLevel)
	if len(matchedTokens) == 0 {
		reason := fmt.Sprintf("no owned token grants level %q", req.RequiredLevel)
		v.audit(ctx, req.Wallet, contractRef, actionCheck, false, map[string]string{"reason": reason})
		v.Metrics.AccessDenied.Inc()
		return &Result{Wallet: req.Wallet, ContractRef: contractRef, Reason: reason, CheckedAt: now},
			apperr.New(apperr.AccessDenied, "access denied for %s: %s", req.Wallet, reason)
	}

	v.audit(ctx, req.Wallet, contractRef, actionCheck, true, matchedMeta)
	v.Metrics.AccessGranted.Inc()
	return &Result{
		Granted:       true,
		Wallet:        req.Wallet,
		ContractRef:   contractRef,
		MatchedTokens: matchedTokens,
		Matched:       matchedMeta,
		CheckedAt:     now,
	}, nil
}

func (v *Validator) resolveContract(ctx context.Context, req Request) (string, error) {
	if req.ContractRef != "" {
		return req.ContractRef, nil
	}
	if req.MerchantID == "" {
		return "", apperr.Validationf("a contract reference or merchant id is required")
	}
	m, err := v.Merchants.GetByID(ctx, req.MerchantID)
	if err != nil {
		if errors.Is(err, merchant.ErrNotFound) {
			return "", apperr.NotFoundf("merchant %s not found", req.MerchantID)
		}
		return "", apperr.Transientf(5*time.Second, err, "load merchant %s failed", req.MerchantID)
	}
	if m.ContractRef == "" {
		return "", apperr.Validationf("merchant %s has no contract reference", m.ID)
	}
	return m.ContractRef, nil
}

// matchLevel selects the owned tokens whose access_level attribute includes
// required. An empty requirement is satisfied by any ownership.
func matchLevel(tokens []nft.Token, required string) ([]string, map[string]string) {
	var ids []string
	meta := map[string]string{}
	for _, t := range tokens {
		levels := t.Metadata.Attributes["access_level"]
		if required != "" && !containsLevel(levels, required) {
			continue
		}
		ids = append(ids, t.ID)
		if levels != "" {
			meta["access_level"] = levels
		}
	}
	if len(ids) > 0 {
		meta["token_count"] = fmt.Sprint(len(ids))
	}
	return ids, meta
}

func containsLevel(levels, required string) bool {
	for _, l := range strings.Split(levels, ",") {
		if strings.EqualFold(strings.TrimSpace(l), required) {
			return true
		}
	}
	return false
}

func (v *Validator) audit(ctx context.Context, wallet, contractRef, action string, granted bool, meta map[string]string) {
	e := &AuditEntry{
		ID:              uuid.NewString(),
		Wallet:          NormalizeAddress(wallet),
		ContractRef:     contractRef,
		Action:          action,
		Granted:         granted,
		MatchedMetadata: meta,
		CreatedAt:       time.Now().UTC(),
	}
	if err := v.Audit.Record(ctx, e); err != nil {
		log.Printf("[access] record audit for %s: %v", wallet, err)
	}
}
