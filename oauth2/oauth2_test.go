package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"

	"github.com/soumyab/authgate"
)

func TestNormalizeGoogle(t *testing.T) {
	cases := []struct {
		name     string
		userInfo map[string]any
		want     authgate.NormalizedProfile
	}{
		{
			"full profile",
			map[string]any{"id": "g-1", "name": "Alice", "email": "alice@example.com", "picture": "https://g/p.jpg"},
			authgate.NormalizedProfile{Provider: "google", SubjectID: "g-1", DisplayName: "Alice", Email: "alice@example.com", PhotoURL: "https://g/p.jpg"},
		},
		{
			"oidc sub instead of id",
			map[string]any{"sub": "g-2", "name": "Bob"},
			authgate.NormalizedProfile{Provider: "google", SubjectID: "g-2", DisplayName: "Bob"},
		},
		{
			"missing name falls back",
			map[string]any{"id": "g-3"},
			authgate.NormalizedProfile{Provider: "google", SubjectID: "g-3", DisplayName: "Google User"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeGoogle(tc.userInfo))
		})
	}
}

func TestNormalizeGithub(t *testing.T) {
	// github sends the numeric id as a JSON number
	got := normalizeGithub(map[string]any{
		"id": float64(583231), "login": "octocat", "name": "The Octocat",
		"email": "octo@example.com", "avatar_url": "https://gh/a.png",
	})
	assert.Equal(t, authgate.NormalizedProfile{
		Provider: "github", SubjectID: "583231", DisplayName: "octocat",
		Email: "octo@example.com", PhotoURL: "https://gh/a.png",
	}, got)

	got = normalizeGithub(map[string]any{"id": float64(7)})
	assert.Equal(t, "GitHub User", got.DisplayName)
	assert.Equal(t, "7", got.SubjectID)
}

func TestNormalizeTwitter(t *testing.T) {
	got := normalizeTwitter(map[string]any{
		"data": map[string]any{
			"id": "tw-9", "name": "Jack", "username": "jack",
			"profile_image_url": "https://pbs/img_normal.jpg",
		},
	})
	assert.Equal(t, "tw-9", got.SubjectID)
	assert.Equal(t, "Jack", got.DisplayName)
	assert.Empty(t, got.Email, "twitter does not report email on this scope set")
	assert.Equal(t, "https://pbs/img.jpg", got.PhotoURL, "thumbnail suffix must be stripped")

	// payload without the data envelope still normalizes
	got = normalizeTwitter(map[string]any{"id": "tw-10", "username": "jill"})
	assert.Equal(t, "tw-10", got.SubjectID)
	assert.Equal(t, "jill", got.DisplayName)
}

func TestNormalizeFacebook(t *testing.T) {
	got := normalizeFacebook(map[string]any{
		"id": "fb-1", "name": "Carol", "email": "carol@example.com",
		"picture": map[string]any{"data": map[string]any{"url": "https://graph/p.jpg"}},
	})
	assert.Equal(t, authgate.NormalizedProfile{
		Provider: "facebook", SubjectID: "fb-1", DisplayName: "Carol",
		Email: "carol@example.com", PhotoURL: "https://graph/p.jpg",
	}, got)

	got = normalizeFacebook(map[string]any{"id": "fb-2"})
	assert.Equal(t, "Facebook User", got.DisplayName)
	assert.Empty(t, got.PhotoURL)
}

func TestNormalizeLinkedin(t *testing.T) {
	got := normalizeLinkedin(map[string]any{
		"sub": "li-1", "given_name": "Dana", "family_name": "Lee",
		"email": "dana@example.com", "picture": "https://li/p.jpg",
	})
	assert.Equal(t, "li-1", got.SubjectID)
	assert.Equal(t, "Dana Lee", got.DisplayName)

	got = normalizeLinkedin(map[string]any{"sub": "li-2", "name": "Full Name"})
	assert.Equal(t, "Full Name", got.DisplayName)

	got = normalizeLinkedin(map[string]any{"sub": "li-3"})
	assert.Equal(t, "LinkedIn User", got.DisplayName)
}

// fakeUpstream simulates a provider: a token endpoint and a userinfo
// endpoint on one server.
func fakeUpstream(t *testing.T, userInfo map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "upstream-access-token",
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer upstream-access-token" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userInfo)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testProvider(t *testing.T, upstream *httptest.Server, complete authgate.FederatedLoginFunc) *Provider {
	t.Helper()
	p := newProvider("google", authgate.ProviderCredentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://localhost/auth/google/callback",
	}, xoauth2.Endpoint{
		AuthURL:  upstream.URL + "/authorize",
		TokenURL: upstream.URL + "/token",
	}, []string{"profile"}, complete)
	p.UserInfoURL = upstream.URL + "/userinfo"
	p.Normalize = normalizeGoogle
	p.HTTPClient = upstream.Client()
	return p
}

func TestProviderRedirectSetsState(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	p := testProvider(t, upstream, nil)

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))

	var state string
	for _, c := range w.Result().Cookies() {
		if c.Name == "oauthstate" {
			state = c.Value
		}
	}
	require.NotEmpty(t, state, "redirect must set the state cookie")
	assert.Equal(t, state, loc.Query().Get("state"))
}

func TestProviderCallbackCompletesLogin(t *testing.T) {
	upstream := fakeUpstream(t, map[string]any{
		"id": "g-77", "name": "Grace", "email": "grace@example.com",
	})

	var got authgate.NormalizedProfile
	p := testProvider(t, upstream, func(profile authgate.NormalizedProfile, w http.ResponseWriter, r *http.Request) {
		got = profile
		w.WriteHeader(http.StatusOK)
	})

	mount := httptest.NewServer(p)
	t.Cleanup(mount.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	// the redirect leg plants the state cookie in the jar
	resp, err := client.Get(mount.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = client.Get(mount.URL + "/callback?state=" + url.QueryEscape(state) + "&code=fake-code")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "g-77", got.SubjectID)
	assert.Equal(t, "Grace", got.DisplayName)
	assert.Equal(t, "grace@example.com", got.Email)
}

func TestProviderCallbackRejectsStateMismatch(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	called := false
	p := testProvider(t, upstream, func(profile authgate.NormalizedProfile, w http.ResponseWriter, r *http.Request) {
		called = true
	})

	r := httptest.NewRequest(http.MethodGet, "/callback?state=wrong&code=fake-code", nil)
	r.AddCookie(&http.Cookie{Name: "oauthstate", Value: "right"})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestProviderCallbackMissingState(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	p := testProvider(t, upstream, nil)

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callback?code=fake-code", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderCallbackIncompleteProfileRedirectsFailure(t *testing.T) {
	// userinfo without an id cannot be resolved to a principal
	upstream := fakeUpstream(t, map[string]any{"name": "No Subject"})
	called := false
	p := testProvider(t, upstream, func(profile authgate.NormalizedProfile, w http.ResponseWriter, r *http.Request) {
		called = true
	})
	p.FailureURL = "/auth/failure"

	r := httptest.NewRequest(http.MethodGet, "/callback?state=s&code=fake-code", nil)
	r.AddCookie(&http.Cookie{Name: "oauthstate", Value: "s"})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/auth/failure?error=")
	assert.False(t, called)
}

func TestProviderDiagnose(t *testing.T) {
	upstream := fakeUpstream(t, map[string]any{})
	p := testProvider(t, upstream, nil)
	assert.NoError(t, p.Diagnose(context.Background()))

	upstream.Close()
	err := p.Diagnose(context.Background())
	var ue *authgate.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "google", ue.Dependency)
}
