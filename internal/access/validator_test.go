package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenbay/storefront/internal/apperr"
	"github.com/tokenbay/storefront/internal/merchant"
	"github.com/tokenbay/storefront/internal/metrics"
	"github.com/tokenbay/storefront/internal/nft"
)

const (
	testWallet   = "0x742d35cc6634c0532925a3b844bc454e4438f44e"
	testContract = "0xcafe"
)

type stubTokens struct {
	owned  []nft.Token
	minted []string
}

func (s *stubTokens) OwnedTokens(context.Context, string, string) ([]nft.Token, error) {
	return s.owned, nil
}

func (s *stubTokens) MintedTo(context.Context, string, string) ([]string, error) {
	return s.minted, nil
}

type memAudit struct {
	entries []AuditEntry
}

func (a *memAudit) Record(_ context.Context, e *AuditEntry) error {
	a.entries = append(a.entries, *e)
	return nil
}

func (a *memAudit) ListByWallet(_ context.Context, wallet string, _, _ int) ([]AuditEntry, error) {
	var out []AuditEntry
	for _, e := range a.entries {
		if e.Wallet == wallet {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubMerchants struct {
	merchants map[string]*merchant.Merchant
}

func (s *stubMerchants) Create(context.Context, *merchant.Merchant) error { return nil }

func (s *stubMerchants) GetByID(_ context.Context, id string) (*merchant.Merchant, error) {
	m, ok := s.merchants[id]
	if !ok {
		return nil, merchant.ErrNotFound
	}
	return m, nil
}

func (s *stubMerchants) GetByContractRef(context.Context, string) (*merchant.Merchant, error) {
	return nil, merchant.ErrNotFound
}

func (s *stubMerchants) SetActive(context.Context, string, bool) error { return nil }

// okVerifier accepts every signature so ownership logic can be tested alone.
type okVerifier struct{}

func (okVerifier) VerifyPersonalSign(string, string, string) error { return nil }

type rejectVerifier struct{}

func (rejectVerifier) VerifyPersonalSign(string, string, string) error {
	return apperr.Signaturef("bad signature")
}

func token(id, levels string) nft.Token {
	tok := nft.Token{ID: id, ContractRef: testContract, Metadata: nft.TokenMetadata{Name: "Pass " + id}}
	if levels != "" {
		tok.Metadata.Attributes = map[string]string{"access_level": levels}
	}
	return tok
}

func newTestValidator(tokens *stubTokens, verify SignatureVerifier, audit AuditRepo) *Validator {
	return NewValidator(
		&stubMerchants{merchants: map[string]*merchant.Merchant{
			"m1": {ID: "m1", Name: "Ticket Hub", ContractRef: testContract, Active: true},
		}},
		tokens, verify, audit, metrics.NewRegistry(),
	)
}

func signedReq(required string) Request {
	return Request{
		Wallet:        testWallet,
		ContractRef:   testContract,
		Challenge:     NewChallenge(testWallet),
		Signature:     "0x" + hexOf(65),
		RequiredLevel: required,
	}
}

func TestValidate_ChallengePhase(t *testing.T) {
	audit := &memAudit{}
	v := newTestValidator(&stubTokens{}, okVerifier{}, audit)

	res, err := v.Validate(context.Background(), Request{Wallet: testWallet})
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Contains(t, res.Challenge, NormalizeAddress(testWallet))

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "challenge_issued", audit.entries[0].Action)
}

func TestValidate_InvalidWallet(t *testing.T) {
	v := newTestValidator(&stubTokens{}, okVerifier{}, &memAudit{})

	_, err := v.Validate(context.Background(), Request{Wallet: "invalid-address-123"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
	assert.Contains(t, err.Error(), "Invalid wallet address")
}

func TestValidate_DeniedWithoutTokens(t *testing.T) {
	audit := &memAudit{}
	v := newTestValidator(&stubTokens{}, okVerifier{}, audit)

	res, err := v.Validate(context.Background(), signedReq(""))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.AccessDenied))

	// The decision body is returned alongside the error.
	require.NotNil(t, res)
	assert.False(t, res.Granted)
	assert.NotEmpty(t, res.Reason)

	// Denials are audited, same as grants.
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "access_check", audit.entries[0].Action)
	assert.False(t, audit.entries[0].Granted)
}

func TestValidate_TransferredAway(t *testing.T) {
	tokens := &stubTokens{minted: []string{"t9"}}
	v := newTestValidator(tokens, okVerifier{}, &memAudit{})

	res, err := v.Validate(context.Background(), signedReq(""))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Transferred))
	require.NotNil(t, res)
	assert.Contains(t, res.Reason, "transferred")
}

func TestValidate_Granted(t *testing.T) {
	audit := &memAudit{}
	tokens := &stubTokens{owned: []nft.Token{token("t1", "vip,ga"), token("t2", "ga")}}
	v := newTestValidator(tokens, okVerifier{}, audit)

	res, err := v.Validate(context.Background(), signedReq("vip"))
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, []string{"t1"}, res.MatchedTokens)

	require.Len(t, audit.entries, 1)
	assert.True(t, audit.entries[0].Granted)
}

func TestValidate_RequiredLevelNotHeld(t *testing.T) {
	tokens := &stubTokens{owned: []nft.Token{token("t1", "ga")}}
	v := newTestValidator(tokens, okVerifier{}, &memAudit{})

	res, err := v.Validate(context.Background(), signedReq("vip"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.AccessDenied))
	assert.False(t, res.Granted)
}

func TestValidate_AnyOwnershipWithoutRequiredLevel(t *testing.T) {
	tokens := &stubTokens{owned: []nft.Token{token("t1", "")}}
	v := newTestValidator(tokens, okVerifier{}, &memAudit{})

	res, err := v.Validate(context.Background(), signedReq(""))
	require.NoError(t, err)
	assert.True(t, res.Granted)
}

func TestValidate_SignatureRejectedIsAudited(t *testing.T) {
	audit := &memAudit{}
	v := newTestValidator(&stubTokens{owned: []nft.Token{token("t1", "")}}, rejectVerifier{}, audit)

	_, err := v.Validate(context.Background(), signedReq(""))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Signature))

	require.Len(t, audit.entries, 1)
	assert.False(t, audit.entries[0].Granted)
	assert.Equal(t, "signature_rejected", audit.entries[0].MatchedMetadata["reason"])
}

func TestValidate_ChallengeWalletMismatch(t *testing.T) {
	v := newTestValidator(&stubTokens{}, okVerifier{}, &memAudit{})

	req := signedReq("")
	req.Challenge = NewChallenge("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	_, err := v.Validate(context.Background(), req)
	assert.True(t, apperr.IsKind(err, apperr.Signature))
}

func TestValidate_ContractViaMerchant(t *testing.T) {
	tokens := &stubTokens{owned: []nft.Token{token("t1", "")}}
	v := newTestValidator(tokens, okVerifier{}, &memAudit{})

	req := signedReq("")
	req.ContractRef = ""
	req.MerchantID = "m1"
	res, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, testContract, res.ContractRef)

	req.MerchantID = "missing"
	_, err = v.Validate(context.Background(), req)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	req.MerchantID = ""
	_, err = v.Validate(context.Background(), req)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}
