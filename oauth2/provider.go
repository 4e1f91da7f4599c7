// Package oauth2 contains the federation adapters: one Provider per identity
// provider, each reducing a provider callback to an authgate.NormalizedProfile
// and handing it to the session lifecycle.
package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/soumyab/authgate"
)

// Provider is a single OAuth2 federation adapter. It serves two routes under
// its mount point: "/" redirects into the provider's consent screen, and
// "/callback" exchanges the returned code for a normalized profile.
type Provider struct {
	Name   string
	Config oauth2.Config

	// UserInfoURL is where the provider's profile is fetched from. Tests
	// override it.
	UserInfoURL string

	// Normalize reduces the provider's userinfo payload to the common
	// profile shape.
	Normalize func(userInfo map[string]any) authgate.NormalizedProfile

	// CompleteLogin receives the normalized profile on success and owns the
	// session establishment and final redirect.
	CompleteLogin authgate.FederatedLoginFunc

	// FailureURL is where failed callbacks redirect. The flow is browser or
	// deep-link driven, so failures never render raw JSON.
	FailureURL string

	// HTTPClient overrides the client used for the token exchange and the
	// userinfo fetch. Nil means http.DefaultClient.
	HTTPClient *http.Client

	mux *http.ServeMux
}

func newProvider(name string, creds authgate.ProviderCredentials, endpoint oauth2.Endpoint,
	scopes []string, complete authgate.FederatedLoginFunc) *Provider {
	p := &Provider{
		Name: name,
		Config: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		CompleteLogin: complete,
		FailureURL:    "/auth/failure",
		mux:           http.NewServeMux(),
	}
	p.mux.HandleFunc("/", p.handleRedirect)
	p.mux.HandleFunc("/callback", p.handleCallback)
	p.mux.HandleFunc("/callback/", p.handleCallback)
	return p
}

func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// handleRedirect sets the anti-CSRF state cookie and sends the client to the
// provider's consent screen.
func (p *Provider) handleRedirect(w http.ResponseWriter, r *http.Request) {
	state := generateStateCookie(w)
	http.Redirect(w, r, p.Config.AuthCodeURL(state), http.StatusFound)
}

func (p *Provider) handleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, _ := r.Cookie("oauthstate")
	if stateCookie == nil {
		http.Error(w, "missing oauth state", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != stateCookie.Value {
		http.SetCookie(w, &http.Cookie{Name: "oauthstate", MaxAge: -1})
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}

	token, err := p.Config.Exchange(p.exchangeContext(r.Context()), r.FormValue("code"))
	if err != nil {
		slog.Warn("code exchange failed", "provider", p.Name, "err", err)
		p.redirectFailure(w, r, "code exchange failed")
		return
	}

	userInfo, err := p.fetchUserInfo(r.Context(), token)
	if err != nil {
		slog.Warn("userinfo fetch failed", "provider", p.Name, "err", err)
		p.redirectFailure(w, r, "profile fetch failed")
		return
	}

	profile := p.Normalize(userInfo)
	if profile.SubjectID == "" {
		slog.Warn("provider profile has no subject id", "provider", p.Name)
		p.redirectFailure(w, r, "incomplete profile")
		return
	}
	p.CompleteLogin(profile, w, r)
}

func (p *Provider) redirectFailure(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, p.FailureURL+"?error="+url.QueryEscape(reason), http.StatusTemporaryRedirect)
}

func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from %s: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}
	var userInfo map[string]any
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}

// Diagnose probes the provider's userinfo endpoint for reachability. It is an
// operator-invoked diagnostic, never run implicitly.
func (p *Provider) Diagnose(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client().Do(req)
	if err != nil {
		return &authgate.UpstreamError{Dependency: p.Name, Err: err}
	}
	resp.Body.Close()
	return nil
}

func (p *Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// exchangeContext routes the token exchange through the injectable client.
func (p *Provider) exchangeContext(ctx context.Context) context.Context {
	if p.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}
	return ctx
}

func generateStateCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("error generating oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:    "oauthstate",
		Value:   state,
		Path:    "/",
		Expires: time.Now().Add(20 * time.Minute),
	})
	return state
}

// stringField returns the first non-empty string among the named keys.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// subjectString renders a provider subject id, which arrives as a string for
// some providers and a JSON number for others.
func subjectString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
