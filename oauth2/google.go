package oauth2

import (
	"golang.org/x/oauth2/google"

	"github.com/soumyab/authgate"
)

// NewGoogle builds the Google federation adapter.
func NewGoogle(creds authgate.ProviderCredentials, complete authgate.FederatedLoginFunc) *Provider {
	p := newProvider("google", creds, google.Endpoint, []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}, complete)
	p.UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	p.Normalize = normalizeGoogle
	return p
}

func normalizeGoogle(userInfo map[string]any) authgate.NormalizedProfile {
	name := stringField(userInfo, "name")
	if name == "" {
		name = "Google User"
	}
	return authgate.NormalizedProfile{
		Provider:    "google",
		SubjectID:   stringField(userInfo, "id", "sub"),
		DisplayName: name,
		Email:       stringField(userInfo, "email"),
		PhotoURL:    stringField(userInfo, "picture"),
	}
}
