package oauth2

import (
	"strings"

	"golang.org/x/oauth2"

	"github.com/soumyab/authgate"
)

// twitterEndpoint is not shipped with golang.org/x/oauth2, so it is declared
// here.
var twitterEndpoint = oauth2.Endpoint{
	AuthURL:  "https://twitter.com/i/oauth2/authorize",
	TokenURL: "https://api.twitter.com/2/oauth2/token",
}

// NewTwitter builds the Twitter federation adapter. Twitter does not expose
// the account email on this scope set, so its principals are created without
// one.
func NewTwitter(creds authgate.ProviderCredentials, complete authgate.FederatedLoginFunc) *Provider {
	p := newProvider("twitter", creds, twitterEndpoint, []string{
		"users.read", "tweet.read",
	}, complete)
	p.UserInfoURL = "https://api.twitter.com/2/users/me?user.fields=profile_image_url"
	p.Normalize = normalizeTwitter
	return p
}

func normalizeTwitter(userInfo map[string]any) authgate.NormalizedProfile {
	data, _ := userInfo["data"].(map[string]any)
	if data == nil {
		data = userInfo
	}
	name := stringField(data, "name", "username")
	if name == "" {
		name = "Twitter User"
	}
	return authgate.NormalizedProfile{
		Provider:    "twitter",
		SubjectID:   subjectString(data["id"]),
		DisplayName: name,
		PhotoURL:    twitterFullSizePhoto(stringField(data, "profile_image_url")),
	}
}

// twitterFullSizePhoto strips the "_normal" suffix so the hosted copy is the
// full-size image rather than the 48x48 thumbnail.
func twitterFullSizePhoto(url string) string {
	return strings.Replace(url, "_normal.", ".", 1)
}
