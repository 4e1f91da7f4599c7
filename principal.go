package authgate

import (
	"context"
	"net/http"
	"time"
)

// Principal is the authenticated entity a session or bearer token represents.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`

	// PasswordHash is present iff the principal signed up locally.
	PasswordHash string `json:"-"`

	// Verified gates local login. Federated principals are created verified.
	Verified bool `json:"verified"`

	// PendingCode and CodeIssuedAt exist only during the unverified window.
	// A principal never holds two outstanding codes: repeat signups overwrite.
	PendingCode  string    `json:"-"`
	CodeIssuedAt time.Time `json:"-"`

	// PhotoURL is the hosted copy of the provider photo; PhotoSourceURL is
	// the provider-side URL it was uploaded from, kept so repeat federated
	// logins can tell whether the provider photo changed.
	PhotoURL       string `json:"photo_url,omitempty"`
	PhotoSourceURL string `json:"-"`

	Identities []FederatedIdentity `json:"identities,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FederatedIdentity is a (provider, provider-issued subject id) pair
// identifying a principal via a third party. Pairs are globally unique.
type FederatedIdentity struct {
	Provider  string `json:"provider"`
	SubjectID string `json:"subject_id"`
}

// HasLocalCredential reports whether the principal can log in with a password.
func (p *Principal) HasLocalCredential() bool {
	return p.PasswordHash != ""
}

// IdentityFor returns the principal's identity for the given provider, if any.
func (p *Principal) IdentityFor(provider string) (FederatedIdentity, bool) {
	for _, id := range p.Identities {
		if id.Provider == provider {
			return id, true
		}
	}
	return FederatedIdentity{}, false
}

// PrincipalStore is the credential store boundary. Implementations must
// guarantee two uniqueness invariants: email is unique among principals that
// carry a local credential, and (provider, subject id) pairs are unique across
// all principals. InsertUnique must be a single conditional insert enforced by
// the store, not a read-then-write, so concurrent callbacks for the same new
// subject id produce exactly one principal.
type PrincipalStore interface {
	// FindByID returns ErrPrincipalNotFound if no such principal exists.
	FindByID(ctx context.Context, id string) (*Principal, error)

	// FindByEmail resolves the local identity channel.
	FindByEmail(ctx context.Context, email string) (*Principal, error)

	// FindByProviderSubject resolves a federated identity channel.
	FindByProviderSubject(ctx context.Context, provider, subjectID string) (*Principal, error)

	// InsertUnique persists a new principal, returning ErrDuplicateKey if
	// any uniqueness invariant would be violated.
	InsertUnique(ctx context.Context, p *Principal) error

	// Update persists changes to an existing principal.
	Update(ctx context.Context, p *Principal) error
}

// NormalizedProfile is the provider-independent shape every federation
// adapter reduces a provider profile to.
type NormalizedProfile struct {
	Provider    string
	SubjectID   string
	DisplayName string
	Email       string
	PhotoURL    string
}

// FederatedLoginFunc is called by a federation adapter after a successful
// provider callback. Implementations resolve or create the principal,
// establish the session, and answer the request (typically a redirect).
type FederatedLoginFunc func(profile NormalizedProfile, w http.ResponseWriter, r *http.Request)

// NotificationSender delivers a verification code to an email address.
type NotificationSender interface {
	SendVerificationCode(to, code string) error
}

// MediaUploader copies an image at a source URL to the external media host
// and returns the hosted URL. Upload failures never fail the enclosing login.
type MediaUploader interface {
	Upload(ctx context.Context, sourceURL string) (string, error)
}
