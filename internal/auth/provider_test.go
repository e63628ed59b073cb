package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hyperengineering/stash"
)

// tokenServer exchanges any credential for "bearer-" + credential and
// counts exchanges.
func tokenServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req tokenExchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode exchange request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(tokenExchangeResponse{Token: "bearer-" + req.Credential})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCredential(t *testing.T, path, credential string) {
	t.Helper()
	data, err := json.Marshal(pendingCredential{Credential: credential})
	if err != nil {
		t.Fatalf("marshal credential: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write credential file: %v", err)
	}
}

func TestStaticProvider_BypassesExchange(t *testing.T) {
	p := NewStaticProvider("fixed-token")
	ctx := context.Background()

	token, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token != "fixed-token" {
		t.Errorf("token = %q, want fixed-token", token)
	}
	if !p.IsAuthenticated(ctx) {
		t.Error("static provider should report authenticated")
	}
	found, err := p.HandleRedirect(ctx)
	if err != nil || !found {
		t.Errorf("HandleRedirect() = %v, %v, want true, nil", found, err)
	}
	if err := p.RedirectToAuth(ctx); err != nil {
		t.Errorf("RedirectToAuth() error: %v", err)
	}
}

func TestToken_NoCredentialReturnsAuthRequired(t *testing.T) {
	credPath := filepath.Join(t.TempDir(), "credential.json")
	p := NewProvider("http://127.0.0.1:0/token", credPath, nil)

	_, err := p.Token(context.Background())
	if !errors.Is(err, stash.ErrAuthRequired) {
		t.Fatalf("error = %v, want ErrAuthRequired", err)
	}
	if p.IsAuthenticated(context.Background()) {
		t.Error("provider without a credential should not report authenticated")
	}
}

func TestToken_ConsumesCredentialFile(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits)
	credPath := filepath.Join(t.TempDir(), "credential.json")
	writeCredential(t, credPath, "cred-1")
	p := NewProvider(srv.URL, credPath, nil)

	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token != "bearer-cred-1" {
		t.Errorf("token = %q, want bearer-cred-1", token)
	}
	if _, err := os.Stat(credPath); !os.IsNotExist(err) {
		t.Error("credential file should be removed after consumption")
	}
	if !p.IsAuthenticated(context.Background()) {
		t.Error("provider should report authenticated after exchange")
	}
}

func TestToken_CachesBetweenCalls(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits)
	credPath := filepath.Join(t.TempDir(), "credential.json")
	writeCredential(t, credPath, "cred-1")
	p := NewProvider(srv.URL, credPath, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := p.Token(ctx); err != nil {
			t.Fatalf("Token() call %d: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("exchange endpoint hit %d times, want 1", hits.Load())
	}
}

func TestClearToken_ForcesRefetch(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits)
	credPath := filepath.Join(t.TempDir(), "credential.json")
	writeCredential(t, credPath, "cred-1")
	p := NewProvider(srv.URL, credPath, nil)

	ctx := context.Background()
	if _, err := p.Token(ctx); err != nil {
		t.Fatalf("first Token(): %v", err)
	}
	if err := p.ClearToken(); err != nil {
		t.Fatalf("ClearToken(): %v", err)
	}
	if p.IsAuthenticated(ctx) {
		t.Error("cleared provider should not report authenticated")
	}

	// The credential was already consumed, so the next Token needs a new
	// file to be dropped.
	_, err := p.Token(ctx)
	if !errors.Is(err, stash.ErrAuthRequired) {
		t.Fatalf("error = %v, want ErrAuthRequired", err)
	}

	writeCredential(t, credPath, "cred-2")
	token, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token() after new credential: %v", err)
	}
	if token != "bearer-cred-2" {
		t.Errorf("token = %q, want bearer-cred-2", token)
	}
}

func TestHandleRedirect_NoFilePending(t *testing.T) {
	credPath := filepath.Join(t.TempDir(), "credential.json")
	p := NewProvider("http://127.0.0.1:0/token", credPath, nil)

	found, err := p.HandleRedirect(context.Background())
	if err != nil {
		t.Fatalf("HandleRedirect() error: %v", err)
	}
	if found {
		t.Error("HandleRedirect() = true with no credential file")
	}
}

func TestHandleRedirect_ConsumesPendingFile(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits)
	credPath := filepath.Join(t.TempDir(), "credential.json")
	writeCredential(t, credPath, "cred-1")
	p := NewProvider(srv.URL, credPath, nil)

	found, err := p.HandleRedirect(context.Background())
	if err != nil {
		t.Fatalf("HandleRedirect() error: %v", err)
	}
	if !found {
		t.Fatal("HandleRedirect() = false, want true")
	}
	if !p.IsAuthenticated(context.Background()) {
		t.Error("provider should report authenticated after redirect handling")
	}
}

func TestHandleRedirect_MalformedFileIsRemoved(t *testing.T) {
	credPath := filepath.Join(t.TempDir(), "credential.json")
	if err := os.WriteFile(credPath, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	p := NewProvider("http://127.0.0.1:0/token", credPath, nil)

	_, err := p.HandleRedirect(context.Background())
	if err == nil {
		t.Fatal("expected parse error for malformed credential")
	}
	if _, statErr := os.Stat(credPath); !os.IsNotExist(statErr) {
		t.Error("malformed credential file should still be removed")
	}

	// A later redirect with a valid file must not be wedged by the bad one.
	found, err := p.HandleRedirect(context.Background())
	if err != nil || found {
		t.Errorf("follow-up HandleRedirect() = %v, %v, want false, nil", found, err)
	}
}

func TestExchange_RejectedCredentialIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credential", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	credPath := filepath.Join(t.TempDir(), "credential.json")
	writeCredential(t, credPath, "stolen")
	p := NewProvider(srv.URL, credPath, nil)

	_, err := p.Token(context.Background())
	if !errors.Is(err, stash.ErrAuthRequired) {
		t.Fatalf("error = %v, want ErrAuthRequired", err)
	}
}

func TestExchange_EmptyTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenExchangeResponse{})
	}))
	t.Cleanup(srv.Close)

	credPath := filepath.Join(t.TempDir(), "credential.json")
	writeCredential(t, credPath, "cred-1")
	p := NewProvider(srv.URL, credPath, nil)

	_, err := p.Token(context.Background())
	if err == nil {
		t.Fatal("expected error for empty token response")
	}
}

func TestRedirectToAuth_RequiresCredentialPath(t *testing.T) {
	p := NewProvider("http://127.0.0.1:0/token", "", nil)

	err := p.RedirectToAuth(context.Background())
	if !errors.Is(err, stash.ErrAuthRequired) {
		t.Fatalf("error = %v, want ErrAuthRequired", err)
	}
}
