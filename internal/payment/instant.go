// Package payment routes a pending order through one of the two payment
// rails and owns the status transitions around it.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tokenbay/storefront/internal/apperr"
)

const (
	ChargePending = "pending"
	ChargePaid    = "paid"
	ChargeExpired = "expired"
)

type ChargeRequest struct {
	AmountMinor int64         `json:"amount_minor"`
	Currency    string        `json:"currency"`
	PayoutKey   string        `json:"payout_key"`
	Description string        `json:"description"`
	MerchantRef string        `json:"merchant_ref"`
	OrderRef    string        `json:"order_ref"`
	ExpiresIn   time.Duration `json:"-"`
}

type Charge struct {
	Ref       string    `json:"ref"`
	Status    string    `json:"status"`
	QRCode    string    `json:"qr_code"`
	CopyPaste string    `json:"copy_paste,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InstantClient is the HTTP client for the instant-payment provider.
type InstantClient struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

func NewInstantClient(baseURL, apiKey string) *InstantClient {
	return &InstantClient{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: baseURL,
		APIKey:  apiKey,
	}
}

func (c *InstantClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	payload := map[string]any{
		"amount_minor": req.AmountMinor,
		"currency":     req.Currency,
		"payout_key":   req.PayoutKey,
		"description":  req.Description,
		"merchant_ref": req.MerchantRef,
		"order_ref":    req.OrderRef,
		"expires_in":   int64(req.ExpiresIn.Seconds()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, apperr.Transientf(10*time.Second, err, "instant-payment provider unreachable")
	}
	defer res.Body.Close()
	return decodeCharge(res)
}

func (c *InstantClient) GetCharge(ctx context.Context, ref string) (*Charge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/charges/%s", c.BaseURL, url.PathEscape(ref)), nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Transientf(10*time.Second, err, "instant-payment provider unreachable")
	}
	defer res.Body.Close()
	return decodeCharge(res)
}

func decodeCharge(res *http.Response) (*Charge, error) {
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		var ch Charge
		if err := json.NewDecoder(res.Body).Decode(&ch); err != nil {
			return nil, err
		}
		return &ch, nil
	case res.StatusCode == http.StatusNotFound:
		return nil, apperr.NotFoundf("instant-payment provider: %s", providerErr(res))
	case res.StatusCode == http.StatusBadRequest:
		return nil, apperr.Validationf("instant-payment provider: %s", providerErr(res))
	default:
		return nil, apperr.Transientf(10*time.Second, fmt.Errorf("status %s", res.Status),
			"instant-payment provider: %s", providerErr(res))
	}
}

func providerErr(res *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil || body.Error == "" {
		return res.Status
	}
	return body.Error
}
