package authgate

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// SessionPrincipalKey is the session variable holding the bound principal id.
// Only the id is stored — the principal is re-resolved against the store on
// every use, so external changes are observed immediately.
const SessionPrincipalKey = "principalId"

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Lifecycle orchestrates the signup → verify → login state transitions,
// session establishment and teardown, and reconciles the local-password and
// federated entry points into one principal representation.
type Lifecycle struct {
	Store    PrincipalStore
	Hasher   PasswordHasher
	Notifier NotificationSender
	Issuer   *TokenIssuer
	Session  *scs.SessionManager

	// Uploader is optional; when nil, provider photo URLs are stored as-is.
	Uploader MediaUploader

	Logger *slog.Logger

	// now is swappable for code-expiry tests
	now func() time.Time
}

func (lc *Lifecycle) logger() *slog.Logger {
	if lc.Logger != nil {
		return lc.Logger
	}
	return slog.Default()
}

func (lc *Lifecycle) clock() time.Time {
	if lc.now != nil {
		return lc.now()
	}
	return time.Now()
}

// Signup registers a local principal in the pending-verification state and
// emails it a 6-digit code.
//
// Repeat signup for an email that is still unverified regenerates and resends
// the code rather than failing; only a verified registration conflicts. A
// failed email send is surfaced to the caller, but the principal record is
// kept so a retry can regenerate the code.
func (lc *Lifecycle) Signup(ctx context.Context, email, password, displayName string) (*Principal, error) {
	if err := validateSignup(email, password, displayName); err != nil {
		return nil, err
	}

	existing, err := lc.Store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Verified {
			return nil, ErrEmailExists
		}
		// still pending: overwrite the outstanding code and resend
		return lc.refreshPendingCode(ctx, existing)
	}

	hash, err := lc.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	code, err := GenerateVerificationCode()
	if err != nil {
		return nil, err
	}

	p := &Principal{
		ID:           uuid.NewString(),
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: hash,
		Verified:     false,
		PendingCode:  code,
		CodeIssuedAt: lc.clock(),
	}
	if err := lc.Store.InsertUnique(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	lc.logger().Info("principal created, pending verification", "principal", p.ID, "email", email)

	if err := lc.Notifier.SendVerificationCode(email, code); err != nil {
		// the record persists; re-signup regenerates the code
		return p, &UpstreamError{Dependency: "email", Err: err}
	}
	return p, nil
}

func (lc *Lifecycle) refreshPendingCode(ctx context.Context, p *Principal) (*Principal, error) {
	code, err := GenerateVerificationCode()
	if err != nil {
		return nil, err
	}
	p.PendingCode = code
	p.CodeIssuedAt = lc.clock()
	if err := lc.Store.Update(ctx, p); err != nil {
		return nil, err
	}
	lc.logger().Info("verification code regenerated", "principal", p.ID)

	if err := lc.Notifier.SendVerificationCode(p.Email, code); err != nil {
		return p, &UpstreamError{Dependency: "email", Err: err}
	}
	return p, nil
}

// Verify redeems a verification code. On success the principal becomes
// verified, the code is cleared, a session is established and a bearer token
// issued. A wrong or expired code mutates nothing.
func (lc *Lifecycle) Verify(ctx context.Context, email, code string) (*Principal, string, error) {
	p, err := lc.Store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, "", ErrPrincipalNotFound
		}
		return nil, "", err
	}
	if p.Verified {
		return nil, "", ErrAlreadyVerified
	}
	if p.PendingCode == "" || p.PendingCode != code {
		return nil, "", ErrInvalidCode
	}
	if lc.clock().After(p.CodeIssuedAt.Add(CodeTTL)) {
		return nil, "", ErrInvalidCode
	}

	p.Verified = true
	p.PendingCode = ""
	p.CodeIssuedAt = time.Time{}
	if err := lc.Store.Update(ctx, p); err != nil {
		return nil, "", err
	}

	if err := lc.establishSession(ctx, p); err != nil {
		return nil, "", err
	}
	token, err := lc.Issuer.Issue(p)
	if err != nil {
		return nil, "", err
	}
	lc.logger().Info("principal verified", "principal", p.ID)
	return p, token, nil
}

// Login authenticates a local credential. Unknown email, federation-only
// principals and hash mismatches all collapse into ErrInvalidCredentials; an
// unverified account fails with ErrUnverifiedAccount regardless of password
// correctness.
func (lc *Lifecycle) Login(ctx context.Context, email, password string) (*Principal, string, error) {
	p, err := lc.Store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if !p.HasLocalCredential() {
		return nil, "", ErrInvalidCredentials
	}
	if !p.Verified {
		return nil, "", ErrUnverifiedAccount
	}
	if err := lc.Hasher.Compare(p.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := lc.establishSession(ctx, p); err != nil {
		return nil, "", err
	}
	token, err := lc.Issuer.Issue(p)
	if err != nil {
		return nil, "", err
	}
	return p, token, nil
}

// CompleteFederatedLogin resolves a provider callback to a principal and
// establishes a session. Resolution is provider-id-first: an email collision
// with another account never matches. First sight of a (provider, subject id)
// creates a principal that is verified from birth and has no password.
//
// No bearer token is issued on this channel; the session carries it.
func (lc *Lifecycle) CompleteFederatedLogin(ctx context.Context, profile NormalizedProfile) (*Principal, error) {
	if profile.Provider == "" || profile.SubjectID == "" {
		return nil, NewAuthError(ErrCodeMissingField, "Provider profile is missing a subject id", "")
	}

	p, err := lc.Store.FindByProviderSubject(ctx, profile.Provider, profile.SubjectID)
	if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}

	if p == nil {
		p, err = lc.createFederatedPrincipal(ctx, profile)
		if err != nil {
			return nil, err
		}
	} else {
		lc.refreshPhoto(ctx, p, profile)
	}

	if err := lc.establishSession(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (lc *Lifecycle) createFederatedPrincipal(ctx context.Context, profile NormalizedProfile) (*Principal, error) {
	p := &Principal{
		ID:          uuid.NewString(),
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Verified:    true,
		Identities:  []FederatedIdentity{{Provider: profile.Provider, SubjectID: profile.SubjectID}},
	}
	if profile.PhotoURL != "" {
		p.PhotoSourceURL = profile.PhotoURL
		p.PhotoURL = lc.uploadPhoto(ctx, profile)
	}

	if err := lc.Store.InsertUnique(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// lost a race with a concurrent callback for the same subject
			return lc.Store.FindByProviderSubject(ctx, profile.Provider, profile.SubjectID)
		}
		return nil, err
	}
	lc.logger().Info("federated principal created",
		"principal", p.ID, "provider", profile.Provider, "subject", profile.SubjectID)
	return p, nil
}

// refreshPhoto re-uploads the provider photo when its source URL changed.
// Best effort: failures are logged as a degraded outcome, never returned.
func (lc *Lifecycle) refreshPhoto(ctx context.Context, p *Principal, profile NormalizedProfile) {
	if profile.PhotoURL == "" || profile.PhotoURL == p.PhotoSourceURL {
		return
	}
	hosted := lc.uploadPhoto(ctx, profile)
	if hosted == "" && lc.Uploader != nil {
		return
	}
	p.PhotoSourceURL = profile.PhotoURL
	p.PhotoURL = hosted
	if err := lc.Store.Update(ctx, p); err != nil {
		lc.logger().Warn("failed to persist refreshed photo", "principal", p.ID, "err", err)
	}
}

// uploadPhoto returns the hosted URL, the raw provider URL when no uploader
// is configured, or "" when the upload failed.
func (lc *Lifecycle) uploadPhoto(ctx context.Context, profile NormalizedProfile) string {
	if lc.Uploader == nil {
		return profile.PhotoURL
	}
	hosted, err := lc.Uploader.Upload(ctx, profile.PhotoURL)
	if err != nil {
		lc.logger().Warn("profile photo upload failed",
			"provider", profile.Provider, "url", profile.PhotoURL, "err", err)
		return ""
	}
	return hosted
}

// CurrentPrincipal resolves the session's bound identity against the store.
// An absent, expired or dangling session yields (nil, nil), not an error.
func (lc *Lifecycle) CurrentPrincipal(ctx context.Context) (*Principal, error) {
	id := lc.Session.GetString(ctx, SessionPrincipalKey)
	if id == "" {
		return nil, nil
	}
	p, err := lc.Store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Logout destroys the session. Logging out an already-anonymous context
// succeeds silently.
func (lc *Lifecycle) Logout(ctx context.Context) error {
	return lc.Session.Destroy(ctx)
}

// establishSession rotates the session token and binds the principal id.
// The caller's response must not imply success until the session data is
// committed; handlers doing redirects commit explicitly first.
func (lc *Lifecycle) establishSession(ctx context.Context, p *Principal) error {
	if err := lc.Session.RenewToken(ctx); err != nil {
		return err
	}
	lc.Session.Put(ctx, SessionPrincipalKey, p.ID)
	return nil
}

func validateSignup(email, password, displayName string) error {
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if displayName == "" {
		return NewAuthError(ErrCodeMissingField, "Display name is required", "displayName")
	}
	if !emailRegex.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	if len(password) < MinPasswordLength {
		return NewAuthError(ErrCodeWeakPassword, "Password must be at least 8 characters", "password")
	}
	return nil
}
