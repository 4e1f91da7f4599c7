package oauth2

import (
	"golang.org/x/oauth2/facebook"

	"github.com/soumyab/authgate"
)

// NewFacebook builds the Facebook federation adapter.
func NewFacebook(creds authgate.ProviderCredentials, complete authgate.FederatedLoginFunc) *Provider {
	p := newProvider("facebook", creds, facebook.Endpoint, []string{
		"public_profile",
	}, complete)
	p.UserInfoURL = "https://graph.facebook.com/me?fields=id,name,email,picture"
	p.Normalize = normalizeFacebook
	return p
}

func normalizeFacebook(userInfo map[string]any) authgate.NormalizedProfile {
	name := stringField(userInfo, "name")
	if name == "" {
		name = "Facebook User"
	}
	return authgate.NormalizedProfile{
		Provider:    "facebook",
		SubjectID:   subjectString(userInfo["id"]),
		DisplayName: name,
		Email:       stringField(userInfo, "email"),
		PhotoURL:    facebookPictureURL(userInfo),
	}
}

// facebookPictureURL digs the photo out of the graph API's nested
// {"picture": {"data": {"url": ...}}} shape.
func facebookPictureURL(userInfo map[string]any) string {
	picture, _ := userInfo["picture"].(map[string]any)
	if picture == nil {
		return ""
	}
	data, _ := picture["data"].(map[string]any)
	if data == nil {
		return ""
	}
	return stringField(data, "url")
}
