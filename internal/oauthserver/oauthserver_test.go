package oauthserver

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rakunlabs/arachne/internal/config"
	"github.com/rakunlabs/arachne/internal/registry"
)

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }

func contains(haystack, needle string) bool { return strings.Contains(haystack, needle) }

func base64RawURLSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()

	dir := t.TempDir()
	reg, err := registry.New(context.Background(), &config.StoreSQLite{Datasource: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	t.Cleanup(reg.Close)

	s := New(reg, "https://arachne.example", "test-secret", "discord-client-id", "discord-client-secret",
		time.Hour, 30*24*time.Hour, 10*time.Minute)

	return s, reg
}

func TestHandleProtectedResourceMetadata(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/.well-known/oauth-protected-resource", nil)
	rec := httptest.NewRecorder()
	s.HandleProtectedResourceMetadata(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleAuthorizationServerMetadataAdvertisesS256Only(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/.well-known/oauth-authorization-server", nil)
	rec := httptest.NewRecorder()
	s.HandleAuthorizationServerMetadata(rec, req)

	body := rec.Body.String()
	if !contains(body, `"S256"`) {
		t.Fatalf("expected S256 in metadata, got %s", body)
	}
	if !contains(body, `"none"`) {
		t.Fatalf("expected token_endpoint_auth_methods_supported to include none, got %s", body)
	}
}

func TestHandleRegisterRequiresRedirectURIs(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/oauth/register", stringsReader(`{"redirect_uris": []}`))
	rec := httptest.NewRecorder()
	s.HandleRegister(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for empty redirect_uris, got %d", rec.Code)
	}
}

func TestHandleRegisterRejectsRelativeURI(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/oauth/register", stringsReader(`{"redirect_uris": ["/not-absolute"]}`))
	rec := httptest.NewRecorder()
	s.HandleRegister(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for relative redirect_uri, got %d", rec.Code)
	}
}

func TestHandleRegisterSucceeds(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/oauth/register", stringsReader(`{"redirect_uris": ["https://client.example/callback"], "client_name": "MCP Client"}`))
	rec := httptest.NewRecorder()
	s.HandleRegister(rec, req)

	if rec.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChallengeMatches(t *testing.T) {
	verifier := "a-random-verifier-string-that-is-long-enough"
	challenge := base64RawURLSHA256(verifier)

	if !challengeMatches(challenge, verifier) {
		t.Fatal("expected matching verifier to pass")
	}
	if challengeMatches(challenge, "wrong-verifier") {
		t.Fatal("expected mismatched verifier to fail")
	}
}

func TestStateRoundTrip(t *testing.T) {
	original := authState{
		ClientID:      "client_1",
		RedirectURI:   "https://client.example/callback",
		CodeChallenge: "challenge",
		EntityHint:    "entity_1",
		ClientState:   "xyz",
	}

	encoded, err := encodeState(original)
	if err != nil {
		t.Fatalf("encodeState: %v", err)
	}

	got, err := decodeState(encoded)
	if err != nil {
		t.Fatalf("decodeState: %v", err)
	}
	if got != original {
		t.Fatalf("got %+v, want %+v", got, original)
	}
}

func TestEntityHintFromResource(t *testing.T) {
	cases := map[string]string{
		"https://arachne.example/mcp/entity_123": "entity_123",
		"https://arachne.example/mcp/entity_123/": "entity_123",
		"https://arachne.example/other":          "",
		"": "",
	}
	for resource, want := range cases {
		if got := entityHintFromResource(resource); got != want {
			t.Fatalf("entityHintFromResource(%q) = %q, want %q", resource, got, want)
		}
	}
}
