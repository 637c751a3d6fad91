package openaire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenProvider exchanges client credentials for a bearer token.
type TokenProvider struct {
	URL          string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Token performs one client-credentials grant. Any non-200 answer, or a 200
// without an access_token, is reported as ErrAuthentication.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	logger.Info("Requesting access token", zap.String("url", p.URL))

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", ErrAuthentication, err)
	}
	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d, %s", ErrAuthentication, resp.StatusCode, truncate(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrAuthentication, err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("%w: response carries no access_token", ErrAuthentication)
	}

	logger.Info("Access token retrieved", zap.Int("expires_in", result.ExpiresIn))
	return result.AccessToken, nil
}
