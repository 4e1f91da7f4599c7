// Package gorm provides GORM backed stores for principals, federated
// identities and sessions.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soumyab/authgate"
)

// AutoMigrate creates or updates the tables needed by the stores in this
// package. The raw index statement scopes email uniqueness to principals
// that carry a local credential, so federated-only accounts may share an
// email with a local signup.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PrincipalModel{}, &FederatedIdentityModel{}, &SessionModel{}); err != nil {
		return fmt.Errorf("migrating auth tables: %w", err)
	}
	err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_local_email ON principals(email) WHERE password_hash <> ''`,
	).Error
	if err != nil {
		return fmt.Errorf("creating local email index: %w", err)
	}
	return nil
}

// PrincipalStore implements authgate.PrincipalStore on a GORM connection.
type PrincipalStore struct {
	db *gorm.DB
}

func NewPrincipalStore(db *gorm.DB) *PrincipalStore {
	return &PrincipalStore{db: db}
}

func (s *PrincipalStore) FindByID(ctx context.Context, id string) (*authgate.Principal, error) {
	var model PrincipalModel
	err := s.db.WithContext(ctx).Preload("Identities").First(&model, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToPrincipal(), nil
}

// FindByEmail looks up the local-credential principal for an email.
// Federated-only principals are not addressable by email.
func (s *PrincipalStore) FindByEmail(ctx context.Context, email string) (*authgate.Principal, error) {
	var model PrincipalModel
	err := s.db.WithContext(ctx).Preload("Identities").
		First(&model, "email = ? AND password_hash <> ''", email).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToPrincipal(), nil
}

func (s *PrincipalStore) FindByProviderSubject(ctx context.Context, provider, subjectID string) (*authgate.Principal, error) {
	var identity FederatedIdentityModel
	err := s.db.WithContext(ctx).
		First(&identity, "provider = ? AND subject_id = ?", provider, subjectID).Error
	if err != nil {
		return nil, translateError(err)
	}
	return s.FindByID(ctx, identity.PrincipalID)
}

// InsertUnique creates the principal and its identities in one transaction.
// A uniqueness violation on any row reports authgate.ErrDuplicateKey and
// leaves nothing behind.
func (s *PrincipalStore) InsertUnique(ctx context.Context, p *authgate.Principal) error {
	model := PrincipalToModel(p)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		return translateError(err)
	}
	p.CreatedAt = model.CreatedAt
	p.UpdatedAt = model.UpdatedAt
	return nil
}

// Update rewrites the principal row. Identity rows are immutable once
// created so only the principal itself is saved.
func (s *PrincipalStore) Update(ctx context.Context, p *authgate.Principal) error {
	model := PrincipalToModel(p)
	result := s.db.WithContext(ctx).Omit(clause.Associations).
		Model(&PrincipalModel{}).Where("id = ?", p.ID).
		Select("display_name", "email", "password_hash", "verified",
			"pending_code", "code_issued_at", "photo_url", "photo_source_url").
		Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return authgate.ErrPrincipalNotFound
	}
	return nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return authgate.ErrPrincipalNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return authgate.ErrDuplicateKey
	case strings.Contains(err.Error(), "UNIQUE constraint"):
		// sqlite surfaces conflicts as plain errors
		return authgate.ErrDuplicateKey
	default:
		return err
	}
}
