package authgate

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// Gateway is the HTTP surface of the lifecycle. Every endpoint maps 1:1 to a
// Lifecycle operation; provider adapters are mounted under /auth/{provider}/.
type Gateway struct {
	Lifecycle *Lifecycle
	Session   *scs.SessionManager

	// RedirectURL is where successful federated logins land (for the mobile
	// client this is a deep link). FailureURL receives failed ones — that
	// flow is browser driven, so errors redirect instead of returning JSON.
	RedirectURL string
	FailureURL  string

	Logger *slog.Logger

	router *mux.Router
}

// NewGateway wires the route table for the given lifecycle.
func NewGateway(lc *Lifecycle, session *scs.SessionManager) *Gateway {
	g := &Gateway{
		Lifecycle:   lc,
		Session:     session,
		RedirectURL: "/",
		FailureURL:  "/auth/failure",
	}
	g.router = mux.NewRouter()
	auth := g.router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", g.handleSignup).Methods(http.MethodPost)
	auth.HandleFunc("/signup/verify", g.handleVerify).Methods(http.MethodPost)
	auth.HandleFunc("/login", g.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/current-user", g.handleCurrentUser).Methods(http.MethodGet)
	auth.HandleFunc("/check-session", g.handleCheckSession).Methods(http.MethodGet)
	auth.HandleFunc("/logout", g.handleLogout).Methods(http.MethodGet)
	auth.HandleFunc("/failure", g.handleFailure).Methods(http.MethodGet)
	return g
}

// Handler returns the gateway wrapped in session middleware.
func (g *Gateway) Handler() http.Handler {
	return g.Session.LoadAndSave(g.router)
}

// AddProvider mounts a federation adapter under /auth/{name}/. The adapter
// receives /  (the redirect into the provider) and /callback.
func (g *Gateway) AddProvider(name string, handler http.Handler) *Gateway {
	prefix := "/auth/" + name
	g.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, handler))
	// bare /auth/{name} redirects into the subtree; 308 preserves the method
	g.router.Handle(prefix, http.RedirectHandler(prefix+"/", http.StatusPermanentRedirect))
	return g
}

// CompleteFederatedLogin is the FederatedLoginFunc handed to provider
// adapters. It resolves the principal, then blocks on session durability
// before issuing the redirect so the client never observes "logged in"
// ahead of the session being queryable.
func (g *Gateway) CompleteFederatedLogin(profile NormalizedProfile, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, err := g.Lifecycle.CompleteFederatedLogin(ctx, profile)
	if err != nil {
		g.logger().Warn("federated login failed", "provider", profile.Provider, "err", err)
		http.Redirect(w, r, g.FailureURL+"?error="+url.QueryEscape(err.Error()), http.StatusFound)
		return
	}

	token, expiry, err := g.Session.Commit(ctx)
	if err != nil {
		g.logger().Error("session commit failed", "err", err)
		http.Error(w, `{"error": "Failed to save session"}`, http.StatusInternalServerError)
		return
	}
	g.Session.WriteSessionCookie(ctx, w, token, expiry)
	http.Redirect(w, r, withQuery(g.RedirectURL, "auth", "success"), http.StatusFound)
}

func (g *Gateway) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &req, func(form url.Values) {
		req.Email = form.Get("email")
		req.Password = form.Get("password")
		req.DisplayName = form.Get("displayName")
	}); err != nil {
		g.writeError(w, err)
		return
	}

	p, err := g.Lifecycle.Signup(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Signup initiated. Please check your email for verification code.",
		"userId":  p.ID,
	})
}

func (g *Gateway) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeBody(r, &req, func(form url.Values) {
		req.Email = form.Get("email")
		req.Code = form.Get("code")
	}); err != nil {
		g.writeError(w, err)
		return
	}
	if req.Email == "" || req.Code == "" {
		g.writeError(w, NewAuthError(ErrCodeMissingField, "Missing email or verification code", ""))
		return
	}

	p, token, err := g.Lifecycle.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.setTokenCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Account verified successfully. You are now logged in.",
		"token":   token,
		"user":    principalJSON(p),
	})
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req, func(form url.Values) {
		req.Email = form.Get("email")
		req.Password = form.Get("password")
	}); err != nil {
		g.writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		g.writeError(w, NewAuthError(ErrCodeMissingField, "Missing email or password", ""))
		return
	}

	p, token, err := g.Lifecycle.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.setTokenCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"token":   token,
		"user":    principalJSON(p),
	})
}

func (g *Gateway) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, err := g.Lifecycle.CurrentPrincipal(r.Context())
	if err != nil {
		g.writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": principalJSON(p)})
}

func (g *Gateway) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	p, err := g.Lifecycle.CurrentPrincipal(r.Context())
	if err != nil {
		g.writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          principalJSON(p),
	})
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := g.Lifecycle.Logout(r.Context()); err != nil {
		g.writeError(w, err)
		return
	}
	g.clearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Successfully logged out",
	})
}

func (g *Gateway) handleFailure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Authentication Failed"})
}

// TokenCookieName carries the bearer token for browser clients; mobile
// clients read it from the response body instead.
const TokenCookieName = "jwt"

func (g *Gateway) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(TokenTTL.Seconds()),
	})
}

func (g *Gateway) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// writeError renders a structured client-facing failure. Domain errors map
// to 4xx; anything unrecognized is a 500 with no internals leaked.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	var ae *AuthError
	if errors.As(err, &ae) {
		writeJSON(w, http.StatusBadRequest, ae)
		return
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		g.logger().Error("upstream dependency failed", "dependency", ue.Dependency, "err", ue.Err)
		writeJSON(w, http.StatusBadGateway, NewAuthError(ErrCodeUpstreamFailed, "Failed to send verification email", ""))
		return
	}

	switch {
	case errors.Is(err, ErrEmailExists):
		writeJSON(w, http.StatusConflict, NewAuthError(ErrCodeEmailExists, "User already exists", "email"))
	case errors.Is(err, ErrPrincipalNotFound):
		writeJSON(w, http.StatusNotFound, NewAuthError(ErrCodeNotFound, "User not found", "email"))
	case errors.Is(err, ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", "password"))
	case errors.Is(err, ErrUnverifiedAccount):
		writeJSON(w, http.StatusForbidden, NewAuthError(ErrCodeUnverified, "Please verify your account first", ""))
	case errors.Is(err, ErrInvalidCode):
		writeJSON(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidCode, "Invalid verification code", "code"))
	case errors.Is(err, ErrAlreadyVerified):
		writeJSON(w, http.StatusConflict, NewAuthError(ErrCodeAlreadyVerified, "Account already verified", ""))
	default:
		g.logger().Error("internal error", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	}
}

func principalJSON(p *Principal) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"email":       p.Email,
		"displayName": p.DisplayName,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// decodeBody accepts both JSON and form-encoded bodies; the mobile client
// posts JSON, browser forms post urlencoded.
func decodeBody(r *http.Request, dst any, fromForm func(url.Values)) error {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return NewAuthError("parse_error", "Error parsing form", "")
		}
		fromForm(r.PostForm)
		return nil
	}
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return NewAuthError("parse_error", "Error parsing form", "")
		}
		fromForm(r.PostForm)
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewAuthError("parse_error", "Invalid post body", "")
	}
	return nil
}

func withQuery(target, key, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + key + "=" + value
}
