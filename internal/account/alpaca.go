// Package account provides broker account snapshots for rule evaluation.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	alpacaLiveURL  = "https://api.alpaca.markets"
	alpacaPaperURL = "https://paper-api.alpaca.markets"
)

// AlpacaProvider fetches account snapshots from the Alpaca trading API.
type AlpacaProvider struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
}

// NewAlpacaProvider builds a provider against the live or paper endpoint.
func NewAlpacaProvider(key, secret string, paper bool) *AlpacaProvider {
	base := alpacaLiveURL
	if paper {
		base = alpacaPaperURL
	}
	return &AlpacaProvider{
		baseURL: base,
		key:     key,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewAlpacaProviderWithURL overrides the endpoint, for tests and proxies.
func NewAlpacaProviderWithURL(baseURL, key, secret string) *AlpacaProvider {
	return &AlpacaProvider{
		baseURL: baseURL,
		key:     key,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetSnapshot fetches the account and projects it onto the requested fields.
// Fields the broker does not report are simply absent from the result; the
// rule layer decides whether that is fatal.
func (p *AlpacaProvider) GetSnapshot(ctx context.Context, fields []string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/account", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", p.key)
	req.Header.Set("APCA-API-SECRET-KEY", p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpaca account request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("alpaca account request: status %d: %s", resp.StatusCode, body)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode alpaca account: %w", err)
	}

	snapshot := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := raw[f]; ok {
			snapshot[f] = v
		}
	}
	return snapshot, nil
}
