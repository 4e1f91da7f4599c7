// Package stores provides an in-memory PrincipalStore for development and
// tests. Production deployments use the gorm subpackage.
package stores

import (
	"context"
	"sync"
	"time"

	"github.com/soumyab/authgate"
)

// MemoryPrincipalStore keeps principals in process memory while enforcing the
// same uniqueness invariants as the database-backed store: emails are unique
// among local-credential principals and (provider, subject id) pairs are
// unique globally. InsertUnique checks and inserts under one lock, so
// concurrent callers racing on the same key see exactly one winner.
type MemoryPrincipalStore struct {
	mu        sync.Mutex
	byID      map[string]*authgate.Principal
	byEmail   map[string]string
	bySubject map[string]string
}

func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		byID:      make(map[string]*authgate.Principal),
		byEmail:   make(map[string]string),
		bySubject: make(map[string]string),
	}
}

func subjectKey(provider, subjectID string) string {
	return provider + "|" + subjectID
}

func (s *MemoryPrincipalStore) FindByID(ctx context.Context, id string) (*authgate.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, authgate.ErrPrincipalNotFound
	}
	return clone(p), nil
}

func (s *MemoryPrincipalStore) FindByEmail(ctx context.Context, email string) (*authgate.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, authgate.ErrPrincipalNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryPrincipalStore) FindByProviderSubject(ctx context.Context, provider, subjectID string) (*authgate.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySubject[subjectKey(provider, subjectID)]
	if !ok {
		return nil, authgate.ErrPrincipalNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryPrincipalStore) InsertUnique(ctx context.Context, p *authgate.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; ok {
		return authgate.ErrDuplicateKey
	}
	if p.HasLocalCredential() && p.Email != "" {
		if _, ok := s.byEmail[p.Email]; ok {
			return authgate.ErrDuplicateKey
		}
	}
	for _, fi := range p.Identities {
		if _, ok := s.bySubject[subjectKey(fi.Provider, fi.SubjectID)]; ok {
			return authgate.ErrDuplicateKey
		}
	}

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.index(clone(p))
	return nil
}

func (s *MemoryPrincipalStore) Update(ctx context.Context, p *authgate.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[p.ID]
	if !ok {
		return authgate.ErrPrincipalNotFound
	}
	s.unindex(old)
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now()
	s.index(clone(p))
	return nil
}

// index and unindex assume the lock is held.
func (s *MemoryPrincipalStore) index(p *authgate.Principal) {
	s.byID[p.ID] = p
	if p.HasLocalCredential() && p.Email != "" {
		s.byEmail[p.Email] = p.ID
	}
	for _, fi := range p.Identities {
		s.bySubject[subjectKey(fi.Provider, fi.SubjectID)] = p.ID
	}
}

func (s *MemoryPrincipalStore) unindex(p *authgate.Principal) {
	delete(s.byID, p.ID)
	if p.HasLocalCredential() && p.Email != "" {
		delete(s.byEmail, p.Email)
	}
	for _, fi := range p.Identities {
		delete(s.bySubject, subjectKey(fi.Provider, fi.SubjectID))
	}
}

func clone(p *authgate.Principal) *authgate.Principal {
	out := *p
	out.Identities = append([]authgate.FederatedIdentity(nil), p.Identities...)
	return &out
}
