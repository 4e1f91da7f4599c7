package authgate

// ProviderCredentials holds the client registration one identity provider
// issued to this gateway.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// FederationConfig is the immutable provider configuration injected into
// federation adapters at construction, keyed by provider name. It replaces
// any notion of globally mutable provider state.
type FederationConfig map[string]ProviderCredentials

// Configured reports whether the named provider has a usable registration.
func (fc FederationConfig) Configured(provider string) bool {
	c, ok := fc[provider]
	return ok && c.ClientID != "" && c.ClientSecret != ""
}
