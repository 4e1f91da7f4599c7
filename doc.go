// Package authgate is a session-backed authentication gateway that federates
// multiple OAuth identity providers and a local email/password flow behind one
// API.
//
// AuthGate separates authentication into three concerns: principals, the
// session lifecycle, and federation adapters.
//
// Principal: the authenticated entity. A principal holds exactly one local
// credential (email + password hash), one or more federated identities
// (provider + subject id), or both.
//
// Lifecycle: the state machine moving a principal from anonymous, to
// pending-verification, to authenticated. Local signups start unverified and
// must redeem a 6-digit emailed code; federated logins skip verification
// because the provider attests identity.
//
// Federation adapter: one adapter per provider (see the oauth2 subpackage),
// each exchanging a provider callback for a NormalizedProfile and handing it
// to the lifecycle, which resolves the principal by (provider, subject id) —
// never by email, so colliding addresses across providers cannot hijack an
// account.
//
// # Basic Usage
//
// Set up a store, session manager and the lifecycle:
//
//	store := stores.NewMemoryPrincipalStore()
//	session := scs.New()
//	issuer, err := authgate.NewTokenIssuer(secret, "myapp")
//	if err != nil {
//	    log.Fatal(err) // missing signing key is a startup failure
//	}
//	lc := &authgate.Lifecycle{
//	    Store:    store,
//	    Hasher:   authgate.NewBcryptHasher(0),
//	    Notifier: &authgate.ConsoleSender{},
//	    Issuer:   issuer,
//	    Session:  session,
//	}
//
// Mount the HTTP surface and the providers you need:
//
//	gw := authgate.NewGateway(lc, session)
//	gw.AddProvider("github", oauth2.NewGithub(creds["github"], gw.CompleteFederatedLogin))
//	http.ListenAndServe(":3001", gw.Handler())
//
// # Storage
//
// The stores package has an in-memory store for development and tests; the
// stores/gorm package persists principals and scs sessions in any GORM-backed
// database. Both enforce the uniqueness invariants the lifecycle relies on:
// local emails are unique among password-bearing principals, and
// (provider, subject id) pairs are unique globally.
//
// # Security
//
// Passwords are hashed with bcrypt; the comparison is constant time. Bearer
// tokens are HS256 JWTs carrying principal id and email, valid for 7 days.
// Verification codes are uniform 6-digit values from crypto/rand and expire
// after 10 minutes, checked lazily at verification time.
package authgate
