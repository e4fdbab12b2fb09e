package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokenbay/storefront/internal/apperr"
)

type TransferRequest struct {
	FromWallet  string          `json:"from_wallet"`
	Amount      decimal.Decimal `json:"amount"`
	TokenSymbol string          `json:"token_symbol"`
	OrderRef    string          `json:"order_ref"`
}

type TransferReceipt struct {
	TxRef     string `json:"tx_ref"`
	Confirmed bool   `json:"confirmed"`
}

// OnChainClient is the HTTP client for the on-chain payment gateway.
type OnChainClient struct {
	HTTP    *http.Client
	BaseURL string
}

func NewOnChainClient(baseURL string) *OnChainClient {
	return &OnChainClient{
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		BaseURL: baseURL,
	}
}

// Quote converts a fiat total into the required amount of the given token.
func (c *OnChainClient) Quote(ctx context.Context, currency string, amountMinor int64, tokenSymbol string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/quotes?currency=%s&amount_minor=%d&token=%s",
			c.BaseURL, url.QueryEscape(currency), amountMinor, url.QueryEscape(tokenSymbol)), nil)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, apperr.Transientf(10*time.Second, err, "on-chain gateway unreachable")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return decimal.Zero, gatewayErr(res)
	}
	var out struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	return out.Amount, nil
}

func (c *OnChainClient) SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, apperr.Transientf(10*time.Second, err, "on-chain gateway unreachable")
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, gatewayErr(res)
	}
	var receipt TransferReceipt
	if err := json.NewDecoder(res.Body).Decode(&receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func gatewayErr(res *http.Response) error {
	msg := providerErr(res)
	switch res.StatusCode {
	case http.StatusBadRequest:
		return apperr.Validationf("on-chain gateway: %s", msg)
	case http.StatusNotFound:
		return apperr.NotFoundf("on-chain gateway: %s", msg)
	default:
		return apperr.Transientf(10*time.Second, fmt.Errorf("status %s", res.Status), "on-chain gateway: %s", msg)
	}
}
