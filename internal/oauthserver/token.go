package oauthserver

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/worldline-go/types"

	"github.com/rakunlabs/arachne/internal/oauthtoken"
	"github.com/rakunlabs/arachne/internal/registry"
)

// HandleToken implements POST /oauth/token for both grant types (spec.md
// §4.8 "Token").
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.tokenFromAuthCode(w, r)
	case "refresh_token":
		s.tokenFromRefreshToken(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) tokenFromAuthCode(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	redirectURI := r.FormValue("redirect_uri")
	verifier := r.FormValue("code_verifier")
	clientID := r.FormValue("client_id")
	if code == "" || redirectURI == "" || verifier == "" || clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code, redirect_uri, code_verifier and client_id are required")
		return
	}

	authCode, err := s.registry.ConsumeAuthCode(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_grant", "unknown or already-used code")
		return
	}

	if time.Now().UTC().After(authCode.ExpiresAt) {
		writeError(w, http.StatusBadRequest, "invalid_grant", "code has expired")
		return
	}
	if authCode.ClientID != clientID || authCode.RedirectURI != redirectURI {
		writeError(w, http.StatusBadRequest, "invalid_grant", "client_id or redirect_uri does not match the authorization request")
		return
	}
	if !challengeMatches(authCode.CodeChallenge, verifier) {
		writeError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match code_challenge")
		return
	}

	s.issueTokenPair(w, r, authCode.EntityID, authCode.PlatformUserID, authCode.ClientID, authCode.Scope)
}

func (s *Server) tokenFromRefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.FormValue("refresh_token")
	clientID := r.FormValue("client_id")
	if refreshToken == "" || clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token and client_id are required")
		return
	}

	rt, err := s.registry.ConsumeRefreshToken(r.Context(), refreshToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_grant", "unknown or already-used refresh token")
		return
	}
	if rt.ClientID != clientID {
		writeError(w, http.StatusBadRequest, "invalid_grant", "client_id does not match the refresh token")
		return
	}
	if rt.ExpiresAt.Valid && time.Now().UTC().After(rt.ExpiresAt.Time.Time) {
		writeError(w, http.StatusBadRequest, "invalid_grant", "refresh token has expired")
		return
	}

	if err := s.registry.RevokeAccessToken(r.Context(), rt.AccessTokenJTI); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	s.issueTokenPair(w, r, rt.EntityID, rt.PlatformUserID, rt.ClientID, rt.Scope)
}

// issueTokenPair mints a fresh JWT access token plus a paired opaque refresh
// token, records both for revocation bookkeeping, and writes the RFC 6749
// token response.
func (s *Server) issueTokenPair(w http.ResponseWriter, r *http.Request, entityID, platformUserID, clientID, scope string) {
	now := time.Now().UTC()
	jti := uuid.NewString()

	claims := oauthtoken.NewClaims(s.baseURL, entityID, platformUserID, clientID, scope, jti, s.accessTokenTTL, now)
	signed, err := oauthtoken.Sign(s.jwtSecret, claims)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	accessExpiresAt := now.Add(s.accessTokenTTL)
	if err := s.registry.RecordAccessToken(r.Context(), registry.OAuthAccessToken{
		JTI:            jti,
		EntityID:       entityID,
		PlatformUserID: platformUserID,
		ClientID:       clientID,
		Scope:          scope,
		ExpiresAt:      types.NewTimeNull(accessExpiresAt),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	refreshExpiresAt := now.Add(s.refreshTokenTTL)
	refreshToken, err := s.registry.CreateRefreshToken(r.Context(), registry.OAuthRefreshToken{
		AccessTokenJTI: jti,
		EntityID:       entityID,
		PlatformUserID: platformUserID,
		ClientID:       clientID,
		Scope:          scope,
		ExpiresAt:      types.NewTimeNull(refreshExpiresAt),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  signed,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
		RefreshToken: refreshToken.Token,
		Scope:        scope,
	})
}

// challengeMatches verifies sha256(verifier) base64url == challenge (spec.md
// §4.8, §8 "PKCE flow").
func challengeMatches(challenge, verifier string) bool {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]) == challenge
}
