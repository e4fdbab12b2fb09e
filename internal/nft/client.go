// Package nft talks to the minting backend and runs order fulfillment.
package nft

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

type TokenMetadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type Token struct {
	ID          string        `json:"id"`
	ContractRef string        `json:"contract_ref"`
	Metadata    TokenMetadata `json:"metadata"`
}

// Client is the HTTP client for the minting service.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		BaseURL: baseURL,
		APIKey:  apiKey,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Transientf(10*time.Second, err, "nft service unreachable")
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(res.Body).Decode(out)
	case res.StatusCode == http.StatusNotFound:
		return apperr.NotFoundf("nft service: %s", decodeErr(res))
	case res.StatusCode == http.StatusBadRequest:
		return apperr.Validationf("nft service: %s", decodeErr(res))
	default:
		return apperr.Transientf(10*time.Second, fmt.Errorf("status %s", res.Status),
			"nft service: %s", decodeErr(res))
	}
}

func decodeErr(res *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil || body.Error == "" {
		return res.Status
	}
	return body.Error
}

// Mint issues one token to recipient on the given contract.
func (c *Client) Mint(ctx context.Context, contractRef, recipient string, meta TokenMetadata) (string, error) {
	var out struct {
		TokenID string `json:"token_id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/contracts/%s/mint", url.PathEscape(contractRef)),
		map[string]any{"recipient": recipient, "metadata": meta}, &out)
	if err != nil {
		return "", err
	}
	return out.TokenID, nil
}

// OwnedTokens lists tokens currently held by wallet on the contract.
func (c *Client) OwnedTokens(ctx context.Context, wallet, contractRef string) ([]Token, error) {
	var out struct {
		Tokens []Token `json:"tokens"`
	}
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/contracts/%s/owners/%s/tokens", url.PathEscape(contractRef), url.PathEscape(wallet)),
		nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

// MintedTo lists token ids originally minted to wallet, held or not.
func (c *Client) MintedTo(ctx context.Context, wallet, contractRef string) ([]string, error) {
	var out struct {
		TokenIDs []string `json:"token_ids"`
	}
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/contracts/%s/minted?recipient=%s", url.PathEscape(contractRef), url.QueryEscape(wallet)),
		nil, &out)
	if err != nil {
		return nil, err
	}
	return out.TokenIDs, nil
}

// TokenMeta fetches the stored metadata of one token.
func (c *Client) TokenMeta(ctx context.Context, contractRef, tokenID string) (*TokenMetadata, error) {
	var out TokenMetadata
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/contracts/%s/tokens/%s", url.PathEscape(contractRef), url.PathEscape(tokenID)),
		nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
