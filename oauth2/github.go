package oauth2

import (
	"golang.org/x/oauth2/github"

	"github.com/soumyab/authgate"
)

// NewGithub builds the GitHub federation adapter.
func NewGithub(creds authgate.ProviderCredentials, complete authgate.FederatedLoginFunc) *Provider {
	p := newProvider("github", creds, github.Endpoint, []string{
		"read:user", "user:email",
	}, complete)
	p.UserInfoURL = "https://api.github.com/user"
	p.Normalize = normalizeGithub
	return p
}

func normalizeGithub(userInfo map[string]any) authgate.NormalizedProfile {
	// prefer the login handle, then the display name
	name := stringField(userInfo, "login", "name")
	if name == "" {
		name = "GitHub User"
	}
	return authgate.NormalizedProfile{
		Provider:    "github",
		SubjectID:   subjectString(userInfo["id"]),
		DisplayName: name,
		Email:       stringField(userInfo, "email"),
		PhotoURL:    stringField(userInfo, "avatar_url"),
	}
}
