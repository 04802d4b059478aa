package oauthserver

import "net/http"

// HandleProtectedResourceMetadata serves GET /.well-known/oauth-protected-resource
// (RFC 9728): this base URL is the resource, and it is its own authorization
// server.
func (s *Server) HandleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protectedResourceMetadata{
		Resource:             s.baseURL,
		AuthorizationServers: []string{s.baseURL},
	})
}

// HandleAuthorizationServerMetadata serves GET /.well-known/oauth-authorization-server
// (RFC 8414).
func (s *Server) HandleAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authorizationServerMetadata{
		Issuer:                            s.baseURL,
		AuthorizationEndpoint:             s.baseURL + "/oauth/authorize",
		TokenEndpoint:                     s.baseURL + "/oauth/token",
		RegistrationEndpoint:              s.baseURL + "/oauth/register",
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		ResponseTypesSupported:            []string{"code"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		ScopesSupported:                   []string{"mcp"},
	})
}
