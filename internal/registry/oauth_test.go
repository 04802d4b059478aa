package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAndGetOAuthClient(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	c, err := r.CreateOAuthClient(ctx, OAuthClient{
		Name:                    "Test Client",
		RedirectURIs:            []string{"https://example.com/callback"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
	})
	if err != nil {
		t.Fatalf("CreateOAuthClient: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected generated client id")
	}

	got, err := r.GetOAuthClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetOAuthClient: %v", err)
	}
	if got.Name != "Test Client" || len(got.RedirectURIs) != 1 || got.RedirectURIs[0] != "https://example.com/callback" {
		t.Fatalf("unexpected client: %+v", got)
	}
	if len(got.GrantTypes) != 2 {
		t.Fatalf("expected grant types to round-trip, got %v", got.GrantTypes)
	}
}

func TestGetOAuthClientNotFound(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.GetOAuthClient(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeAuthCodeIsSingleUse(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.CreateAuthCode(ctx, OAuthAuthCode{
		ClientID:       "client-1",
		RedirectURI:    "https://example.com/callback",
		CodeChallenge:  "challenge",
		EntityID:       "entity-1",
		PlatformUserID: "platform-user-1",
		ExpiresAt:      time.Now().Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateAuthCode: %v", err)
	}

	consumed, err := r.ConsumeAuthCode(ctx, created.Code)
	if err != nil {
		t.Fatalf("ConsumeAuthCode: %v", err)
	}
	if consumed.ClientID != "client-1" || consumed.EntityID != "entity-1" {
		t.Fatalf("unexpected auth code: %+v", consumed)
	}

	if _, err := r.ConsumeAuthCode(ctx, created.Code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second consume to fail with ErrNotFound, got %v", err)
	}
}

func TestAccessTokenRevocationBookkeeping(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	at := OAuthAccessToken{
		JTI:            "jti-1",
		EntityID:       "entity-1",
		PlatformUserID: "platform-user-1",
		ClientID:       "client-1",
		ExpiresAt:      newTimeNull(time.Now().Add(time.Hour)),
	}
	if err := r.RecordAccessToken(ctx, at); err != nil {
		t.Fatalf("RecordAccessToken: %v", err)
	}

	revoked, err := r.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Fatal("expected freshly recorded token to not be revoked")
	}

	if err := r.RevokeAccessToken(ctx, "jti-1"); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}

	revoked, err = r.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("expected token to be revoked")
	}
}

func TestUnknownAccessTokenTreatedAsRevoked(t *testing.T) {
	r := newTestRegistry(t)

	revoked, err := r.IsAccessTokenRevoked(context.Background(), "missing-jti")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("expected an unknown jti to fail closed as revoked")
	}
}

func TestConsumeRefreshTokenIsSingleUse(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.CreateRefreshToken(ctx, OAuthRefreshToken{
		AccessTokenJTI: "jti-1",
		EntityID:       "entity-1",
		PlatformUserID: "platform-user-1",
		ClientID:       "client-1",
		ExpiresAt:      newTimeNull(time.Now().Add(30 * 24 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}

	consumed, err := r.ConsumeRefreshToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("ConsumeRefreshToken: %v", err)
	}
	if consumed.AccessTokenJTI != "jti-1" {
		t.Fatalf("unexpected refresh token: %+v", consumed)
	}

	if _, err := r.ConsumeRefreshToken(ctx, created.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second consume to fail with ErrNotFound, got %v", err)
	}
}
