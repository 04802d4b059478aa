package oauthserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
)

// authState bundles every parameter the client supplied to /oauth/authorize,
// so the Discord round trip (which only gives us back our own "state" query
// parameter) can recover them in discord-callback.
type authState struct {
	ClientID      string `json:"client_id"`
	RedirectURI   string `json:"redirect_uri"`
	CodeChallenge string `json:"code_challenge"`
	Scope         string `json:"scope,omitempty"`
	EntityHint    string `json:"entity_hint,omitempty"`
	ClientState   string `json:"state,omitempty"`
}

func encodeState(s authState) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func decodeState(raw string) (authState, error) {
	var s authState
	b, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return s, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("unmarshal state: %w", err)
	}
	return s, nil
}

// entityHintFromResource extracts "<entity_id>" from an RFC 8707 resource
// parameter of the form "<base>/mcp/<entity_id>".
func entityHintFromResource(resource string) string {
	const marker = "/mcp/"
	idx := strings.LastIndex(resource, marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSuffix(resource[idx+len(marker):], "/")
}

// HandleAuthorize implements GET /oauth/authorize (spec.md §4.8
// "Authorization").
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	responseType := q.Get("response_type")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")

	if clientID == "" || redirectURI == "" || codeChallenge == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id, redirect_uri and code_challenge are required")
		return
	}
	if responseType != "code" {
		writeError(w, http.StatusBadRequest, "invalid_request", "response_type must be \"code\"")
		return
	}
	if codeChallengeMethod != "" && codeChallengeMethod != "S256" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code_challenge_method must be \"S256\"")
		return
	}

	client, err := s.registry.GetOAuthClient(r.Context(), clientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	if !containsString(client.RedirectURIs, redirectURI) {
		writeError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered for this client")
		return
	}

	state := authState{
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		CodeChallenge: codeChallenge,
		Scope:         q.Get("scope"),
		EntityHint:    entityHintFromResource(q.Get("resource")),
		ClientState:   q.Get("state"),
	}
	encoded, err := encodeState(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	http.Redirect(w, r, s.discord.AuthCodeURL(encoded), http.StatusFound)
}

// HandleDiscordCallback implements GET /oauth/discord-callback: exchanges
// the platform code, fetches the user's profile, looks up the Entities they
// own, applies the optional hint filter, and renders the consent page.
func (s *Server) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	rawState := q.Get("state")
	if code == "" || rawState == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code or state")
		return
	}

	state, err := decodeState(rawState)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed state")
		return
	}

	token, err := s.discord.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadGateway, "server_error", fmt.Sprintf("discord code exchange failed: %v", err))
		return
	}

	user, err := s.fetchDiscordUser(r.Context(), token.AccessToken)
	if err != nil {
		writeError(w, http.StatusBadGateway, "server_error", fmt.Sprintf("fetch discord profile failed: %v", err))
		return
	}

	entities, err := s.registry.EntitiesByOwner(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if state.EntityHint != "" {
		filtered := entities[:0]
		for _, e := range entities {
			if e.ID == state.EntityHint {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
		if len(entities) == 0 {
			writeError(w, http.StatusForbidden, "access_denied", "requested entity is not owned by this user")
			return
		}
	}

	options := make([]consentOption, 0, len(entities))
	for _, e := range entities {
		options = append(options, consentOption{EntityID: e.ID, Name: e.Name, Platform: e.Platform})
	}

	reencoded, err := encodeState(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	renderConsentPage(w, reencoded, user.ID, options)
}

// fetchDiscordUser calls GET https://discord.com/api/users/@me with the
// exchanged platform access token.
func (s *Server) fetchDiscordUser(ctx context.Context, accessToken string) (*discordUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://discord.com/api/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discord returned %d: %s", resp.StatusCode, string(body))
	}

	var user discordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("discord returned empty user id")
	}
	return &user, nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!doctype html>
<html><body>
<h1>Grant access</h1>
<form method="POST" action="/oauth/consent">
<input type="hidden" name="state" value="{{.State}}">
<input type="hidden" name="platform_user_id" value="{{.PlatformUserID}}">
{{range .Options}}
<label><input type="radio" name="entity_id" value="{{.EntityID}}"> {{.Name}} ({{.Platform}})</label><br>
{{end}}
<button type="submit">Authorize</button>
</form>
</body></html>`))

func renderConsentPage(w http.ResponseWriter, state, platformUserID string, options []consentOption) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = consentTemplate.Execute(w, struct {
		State          string
		PlatformUserID string
		Options        []consentOption
	}{State: state, PlatformUserID: platformUserID, Options: options})
}
