// Package auth implements the redirect-based credential flow for the
// remote tabular store.
//
// The external flow works out of band: the user authenticates in a
// browser, and the completing redirect drops a one-shot credential file
// at a well-known path. HandleRedirect consumes that file and exchanges
// the credential at the token endpoint for a bearer token, which is
// cached in memory for a bounded lifetime.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hyperengineering/stash"
)

// tokenTTL bounds how long an exchanged bearer token is trusted before a
// fresh exchange is required.
const tokenTTL = 45 * time.Minute

// Provider implements stash.AuthProvider against a token exchange
// endpoint. A static token, when given, bypasses the redirect flow
// entirely.
type Provider struct {
	tokenURL       string
	staticToken    string
	credentialPath string
	httpClient     *http.Client
	log            *stash.DebugLogger

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

var _ stash.AuthProvider = (*Provider)(nil)

// NewProvider creates a provider that exchanges redirect credentials
// dropped at credentialPath for bearer tokens at tokenURL.
func NewProvider(tokenURL, credentialPath string, log *stash.DebugLogger) *Provider {
	return &Provider{
		tokenURL:       tokenURL,
		credentialPath: credentialPath,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		log:            log,
	}
}

// NewStaticProvider creates a provider backed by a fixed bearer token.
func NewStaticProvider(token string) *Provider {
	return &Provider{staticToken: token}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.httpClient = c
	return p
}

// pendingCredential is the file the external redirect flow writes.
type pendingCredential struct {
	Credential string `json:"credential"`
}

// tokenExchangeRequest is the body posted to the token endpoint.
type tokenExchangeRequest struct {
	Credential string `json:"credential"`
}

// tokenExchangeResponse is the token endpoint's reply.
type tokenExchangeResponse struct {
	Token string `json:"token"`
}

// Token returns a valid bearer token. It serves the static token or a
// fresh cached one, consuming a pending redirect credential when the
// cache is cold. Returns stash.ErrAuthRequired when no credential path
// yields a token.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if p.staticToken != "" {
		return p.staticToken, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokenFreshLocked() {
		return p.token, nil
	}

	found, err := p.consumeCredentialLocked(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no credential available: %w", stash.ErrAuthRequired)
	}
	return p.token, nil
}

// IsAuthenticated reports whether a usable credential is in place
// without triggering an exchange.
func (p *Provider) IsAuthenticated(ctx context.Context) bool {
	if p.staticToken != "" {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenFreshLocked()
}

// HandleRedirect consumes a pending redirect credential if one exists,
// exchanging it for a bearer token. Returns false when no credential
// file is present.
func (p *Provider) HandleRedirect(ctx context.Context) (bool, error) {
	if p.staticToken != "" {
		return true, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumeCredentialLocked(ctx)
}

// RedirectToAuth triggers the external authentication flow. The flow
// itself completes out of band; this call only announces where the
// credential is expected to land.
func (p *Provider) RedirectToAuth(ctx context.Context) error {
	if p.staticToken != "" {
		return nil
	}
	if p.credentialPath == "" {
		return fmt.Errorf("no credential path configured: %w", stash.ErrAuthRequired)
	}
	p.log.LogSync("auth_redirect", fmt.Sprintf("waiting for credential at %s", p.credentialPath))
	return nil
}

// ClearToken drops the cached bearer token. The next Token call will
// look for a fresh redirect credential.
func (p *Provider) ClearToken() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.fetchedAt = time.Time{}
	return nil
}

func (p *Provider) tokenFreshLocked() bool {
	return p.token != "" && time.Since(p.fetchedAt) < tokenTTL
}

// consumeCredentialLocked reads and deletes the pending credential file,
// then exchanges it for a bearer token. The file is removed before the
// exchange so a malformed credential cannot wedge the flow.
func (p *Provider) consumeCredentialLocked(ctx context.Context) (bool, error) {
	if p.credentialPath == "" {
		return false, nil
	}

	data, err := os.ReadFile(p.credentialPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read credential: %w", err)
	}
	if err := os.Remove(p.credentialPath); err != nil {
		p.log.LogError("auth_credential_remove", err)
	}

	var cred pendingCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return false, fmt.Errorf("parse credential: %w", err)
	}
	if cred.Credential == "" {
		return false, fmt.Errorf("credential file missing credential field")
	}

	token, err := p.exchange(ctx, cred.Credential)
	if err != nil {
		return false, err
	}

	p.token = token
	p.fetchedAt = time.Now()
	p.log.LogSync("auth_exchange", "bearer token refreshed")
	return true, nil
}

func (p *Provider) exchange(ctx context.Context, credential string) (string, error) {
	if p.tokenURL == "" {
		return "", fmt.Errorf("no token endpoint configured: %w", stash.ErrAuthRequired)
	}

	body, err := json.Marshal(tokenExchangeRequest{Credential: credential})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.log.LogRequest("POST", p.tokenURL, nil)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	p.log.LogResponse(resp.StatusCode, resp.Status, nil)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("credential rejected (%s): %w", resp.Status, stash.ErrAuthRequired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token exchange failed: %s: %s", resp.Status, truncate(respBody, 200))
	}

	var tr tokenExchangeResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}
	return tr.Token, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
