package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	domainErrors "github.com/cassiomorais/paypal-relay/internal/domain/errors"
)

const tokenPath = "/v1/oauth2/token"

// TokenSource exchanges client credentials for a bearer token. Tokens are
// fetched fresh for every call and never cached.
type TokenSource struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewTokenSource(baseURL, clientID, clientSecret string, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenSource{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token performs a client-credentials grant. Every failure wraps ErrAuth.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	const op = "fetch token"

	if s.clientID == "" || s.clientSecret == "" {
		return "", fmt.Errorf("%w: client credentials are not configured", domainErrors.ErrAuth)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", domainErrors.ErrAuth, err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, domainErrors.ErrAuth, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", transportError(ctx, domainErrors.ErrAuth, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domainErrors.NewProcessorError(domainErrors.ErrAuth, op, resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", domainErrors.ErrAuth, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token response has no access_token", domainErrors.ErrAuth)
	}
	return tr.AccessToken, nil
}
