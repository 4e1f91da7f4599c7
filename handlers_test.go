package authgate

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	t       *testing.T
	gateway *Gateway
	sender  *recordingSender
	server  *httptest.Server
	client  *http.Client
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	lc, _, sender := newTestLifecycle(t)
	gateway := NewGateway(lc, lc.Session)

	server := httptest.NewServer(gateway.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &gatewayFixture{t: t, gateway: gateway, sender: sender, server: server, client: client}
}

func (f *gatewayFixture) postJSON(path string, body any) (*http.Response, map[string]any) {
	f.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(f.t, err)
	resp, err := f.client.Post(f.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(f.t, err)
	return resp, decodeJSON(f.t, resp)
}

func (f *gatewayFixture) get(path string) (*http.Response, map[string]any) {
	f.t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(f.t, err)
	return resp, decodeJSON(f.t, resp)
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), "body: %s", raw)
	return body
}

func TestGatewaySignupVerifyLoginOverHTTP(t *testing.T) {
	f := newGatewayFixture(t)

	resp, body := f.postJSON("/auth/signup", map[string]string{
		"email":       "alice@example.com",
		"password":    "password123",
		"displayName": "Alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["userId"])

	// wrong code
	resp, _ = f.postJSON("/auth/signup/verify", map[string]string{
		"email": "alice@example.com",
		"code":  "000000",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.postJSON("/auth/signup/verify", map[string]string{
		"email": "alice@example.com",
		"code":  f.sender.lastCode("alice@example.com"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", user["email"])

	// the verify response sets both session and jwt cookies
	serverURL, _ := url.Parse(f.server.URL)
	names := map[string]bool{}
	for _, c := range f.client.Jar.Cookies(serverURL) {
		names[c.Name] = true
	}
	assert.True(t, names[TokenCookieName], "jwt cookie missing; have %v", names)

	// session established by verify is immediately queryable
	resp, body = f.get("/auth/check-session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["authenticated"])

	resp, body = f.postJSON("/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful", body["message"])
}

func TestGatewayFormEncodedSignup(t *testing.T) {
	f := newGatewayFixture(t)

	form := url.Values{
		"email":       {"bob@example.com"},
		"password":    {"password123"},
		"displayName": {"Bob"},
	}
	resp, err := f.client.Post(f.server.URL+"/auth/signup",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	body := decodeJSON(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["userId"])
}

func TestGatewayErrorStatuses(t *testing.T) {
	f := newGatewayFixture(t)

	// establish a verified account to conflict against
	_, _ = f.postJSON("/auth/signup", map[string]string{
		"email": "carol@example.com", "password": "password123", "displayName": "Carol",
	})
	_, _ = f.postJSON("/auth/signup/verify", map[string]string{
		"email": "carol@example.com", "code": f.sender.lastCode("carol@example.com"),
	})

	cases := []struct {
		name   string
		path   string
		body   map[string]string
		status int
		code   string
	}{
		{"validation failure", "/auth/signup",
			map[string]string{"email": "bad", "password": "password123", "displayName": "X"},
			http.StatusBadRequest, ErrCodeInvalidEmail},
		{"duplicate verified email", "/auth/signup",
			map[string]string{"email": "carol@example.com", "password": "password123", "displayName": "X"},
			http.StatusConflict, ErrCodeEmailExists},
		{"verify unknown email", "/auth/signup/verify",
			map[string]string{"email": "ghost@example.com", "code": "123456"},
			http.StatusNotFound, ErrCodeNotFound},
		{"verify missing code", "/auth/signup/verify",
			map[string]string{"email": "carol@example.com"},
			http.StatusBadRequest, ErrCodeMissingField},
		{"verify already verified", "/auth/signup/verify",
			map[string]string{"email": "carol@example.com", "code": "123456"},
			http.StatusConflict, ErrCodeAlreadyVerified},
		{"login wrong password", "/auth/login",
			map[string]string{"email": "carol@example.com", "password": "wrong-password"},
			http.StatusUnauthorized, ErrCodeInvalidCreds},
		{"login unknown email", "/auth/login",
			map[string]string{"email": "ghost@example.com", "password": "password123"},
			http.StatusUnauthorized, ErrCodeInvalidCreds},
		{"login missing fields", "/auth/login",
			map[string]string{"email": "carol@example.com"},
			http.StatusBadRequest, ErrCodeMissingField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.postJSON(tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, body["code"])
		})
	}
}

func TestGatewayUnverifiedLoginForbidden(t *testing.T) {
	f := newGatewayFixture(t)

	_, _ = f.postJSON("/auth/signup", map[string]string{
		"email": "dave@example.com", "password": "password123", "displayName": "Dave",
	})
	resp, body := f.postJSON("/auth/login", map[string]string{
		"email": "dave@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, ErrCodeUnverified, body["code"])
}

func TestGatewayCurrentUserAndLogout(t *testing.T) {
	f := newGatewayFixture(t)

	resp, body := f.get("/auth/current-user")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["user"], "anonymous current-user is null, not an error")

	resp, body = f.get("/auth/check-session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])

	_, _ = f.postJSON("/auth/signup", map[string]string{
		"email": "erin@example.com", "password": "password123", "displayName": "Erin",
	})
	_, _ = f.postJSON("/auth/signup/verify", map[string]string{
		"email": "erin@example.com", "code": f.sender.lastCode("erin@example.com"),
	})

	resp, body = f.get("/auth/current-user")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "erin@example.com", user["email"])

	resp, body = f.get("/auth/logout")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = f.get("/auth/check-session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])

	// logout of an anonymous session still succeeds
	resp, _ = f.get("/auth/logout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayFailureEndpoint(t *testing.T) {
	f := newGatewayFixture(t)
	resp, body := f.get("/auth/failure")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authentication Failed", body["error"])
}

// fakeProvider stands in for a federation adapter: it skips the upstream
// dance and hands a fixed profile straight to the completion callback.
func TestGatewayFederatedCompletion(t *testing.T) {
	f := newGatewayFixture(t)
	f.gateway.RedirectURL = "/welcome"

	profile := NormalizedProfile{
		Provider:    "google",
		SubjectID:   "g-42",
		DisplayName: "Fiona",
		Email:       "fiona@example.com",
	}
	f.gateway.AddProvider("fake", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.gateway.CompleteFederatedLogin(profile, w, r)
	}))

	resp, _ := f.get("/auth/fake/callback")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/welcome?auth=success", resp.Header.Get("Location"))

	// the session cookie written before the redirect already authenticates
	resp, body := f.get("/auth/check-session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["authenticated"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fiona@example.com", user["email"])
}

func TestGatewayBareProviderPathRedirects(t *testing.T) {
	f := newGatewayFixture(t)
	f.gateway.AddProvider("fake", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	resp, err := f.client.Get(f.server.URL + "/auth/fake")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
	assert.Equal(t, "/auth/fake/", resp.Header.Get("Location"))
}
