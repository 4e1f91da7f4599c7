package gorm

import (
	"time"

	"github.com/soumyab/authgate"
)

// PrincipalModel is the GORM model for principals
type PrincipalModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	DisplayName    string `gorm:"size:255"`
	Email          string `gorm:"size:255;index"`
	PasswordHash   string `gorm:"size:128"`
	Verified       bool   `gorm:"default:false"`
	PendingCode    string `gorm:"size:8"`
	CodeIssuedAt   time.Time
	PhotoURL       string `gorm:"size:512"`
	PhotoSourceURL string `gorm:"size:512"`

	Identities []FederatedIdentityModel `gorm:"foreignKey:PrincipalID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PrincipalModel) TableName() string {
	return "principals"
}

// FederatedIdentityModel is the GORM model for federated identities. The
// composite primary key is what makes (provider, subject id) globally unique,
// turning InsertUnique into a single conditional insert.
type FederatedIdentityModel struct {
	Provider    string    `gorm:"primaryKey;size:32"`
	SubjectID   string    `gorm:"primaryKey;size:255"`
	PrincipalID string    `gorm:"size:64;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (FederatedIdentityModel) TableName() string {
	return "federated_identities"
}

func (m *PrincipalModel) ToPrincipal() *authgate.Principal {
	p := &authgate.Principal{
		ID:             m.ID,
		DisplayName:    m.DisplayName,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		Verified:       m.Verified,
		PendingCode:    m.PendingCode,
		CodeIssuedAt:   m.CodeIssuedAt,
		PhotoURL:       m.PhotoURL,
		PhotoSourceURL: m.PhotoSourceURL,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for _, fi := range m.Identities {
		p.Identities = append(p.Identities, authgate.FederatedIdentity{
			Provider:  fi.Provider,
			SubjectID: fi.SubjectID,
		})
	}
	return p
}

func PrincipalToModel(p *authgate.Principal) *PrincipalModel {
	m := &PrincipalModel{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Email:          p.Email,
		PasswordHash:   p.PasswordHash,
		Verified:       p.Verified,
		PendingCode:    p.PendingCode,
		CodeIssuedAt:   p.CodeIssuedAt,
		PhotoURL:       p.PhotoURL,
		PhotoSourceURL: p.PhotoSourceURL,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	for _, fi := range p.Identities {
		m.Identities = append(m.Identities, FederatedIdentityModel{
			Provider:    fi.Provider,
			SubjectID:   fi.SubjectID,
			PrincipalID: p.ID,
		})
	}
	return m
}

// SessionModel is the durable session record: opaque token, serialized
// session data (which holds only the bound principal id), and expiry.
type SessionModel struct {
	Token  string    `gorm:"primaryKey;size:64"`
	Data   []byte    `gorm:"not null"`
	Expiry time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}
