package oauth2

import (
	"strings"

	"golang.org/x/oauth2/linkedin"

	"github.com/soumyab/authgate"
)

// NewLinkedin builds the LinkedIn federation adapter, using the OIDC userinfo
// endpoint rather than the legacy r_liteprofile API.
func NewLinkedin(creds authgate.ProviderCredentials, complete authgate.FederatedLoginFunc) *Provider {
	p := newProvider("linkedin", creds, linkedin.Endpoint, []string{
		"openid", "profile", "email",
	}, complete)
	p.UserInfoURL = "https://api.linkedin.com/v2/userinfo"
	p.Normalize = normalizeLinkedin
	return p
}

func normalizeLinkedin(userInfo map[string]any) authgate.NormalizedProfile {
	name := stringField(userInfo, "name")
	if name == "" {
		given := stringField(userInfo, "given_name")
		family := stringField(userInfo, "family_name")
		name = strings.TrimSpace(given + " " + family)
	}
	if name == "" {
		name = "LinkedIn User"
	}
	return authgate.NormalizedProfile{
		Provider:    "linkedin",
		SubjectID:   stringField(userInfo, "sub"),
		DisplayName: name,
		Email:       stringField(userInfo, "email"),
		PhotoURL:    stringField(userInfo, "picture"),
	}
}
