package oauthserver

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rakunlabs/arachne/internal/registry"
)

// HandleConsent implements POST /oauth/consent: verifies the chosen Entity
// is owned by the authenticated platform user, mints an AuthCode, and
// redirects back to the client's redirect_uri (spec.md §4.8 "Authorization").
func (s *Server) HandleConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	rawState := r.FormValue("state")
	entityID := r.FormValue("entity_id")
	platformUserID := r.FormValue("platform_user_id")
	if rawState == "" || entityID == "" || platformUserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "state, entity_id and platform_user_id are required")
		return
	}

	state, err := decodeState(rawState)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed state")
		return
	}

	entity, err := s.registry.GetEntity(r.Context(), entityID)
	if err != nil {
		writeError(w, http.StatusForbidden, "access_denied", "entity not found")
		return
	}
	if entity.OwnerID != platformUserID {
		writeError(w, http.StatusForbidden, "access_denied", "entity is not owned by this user")
		return
	}

	authCode, err := s.registry.CreateAuthCode(r.Context(), registry.OAuthAuthCode{
		ClientID:       state.ClientID,
		RedirectURI:    state.RedirectURI,
		Scope:          state.Scope,
		CodeChallenge:  state.CodeChallenge,
		EntityID:       entity.ID,
		PlatformUserID: platformUserID,
		ExpiresAt:      time.Now().UTC().Add(s.authCodeTTL),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	params := url.Values{"code": {authCode.Code}}
	if state.ClientState != "" {
		params.Set("state", state.ClientState)
	}
	http.Redirect(w, r, state.RedirectURI+"?"+params.Encode(), http.StatusFound)
}
