// Package oauthtoken defines the JWT claim shape shared by the OAuth
// Authorization Server (which mints access tokens) and the MCP Endpoint
// (which verifies them) — spec.md §4.7/§4.8's single set of claims.
package oauthtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access-token payload: iss/sub/aud/exp/iat/jti from
// jwt.RegisteredClaims, plus the Arachne-specific fields spec.md §4.8
// requires (entity_id, client_id, scope).
type Claims struct {
	jwt.RegisteredClaims
	EntityID string `json:"entity_id"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

// Sign mints a fresh HS256 access token.
func Sign(secret string, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies an access token's signature and expiry and returns its
// claims. It does not check revocation — callers must consult the
// Registry's jti bookkeeping separately (spec.md §4.7 step 1).
func Parse(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token not valid")
	}
	return claims, nil
}

// NewClaims builds the standard claim set for a freshly issued access
// token (spec.md §4.8 token endpoint).
func NewClaims(baseURL, entityID, subject, clientID, scope, jti string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    baseURL,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{baseURL + "/mcp/" + entityID},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
		EntityID: entityID,
		ClientID: clientID,
		Scope:    scope,
	}
}
