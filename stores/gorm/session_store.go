package gorm

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionStore implements scs.Store on the sessions table, so session
// state survives process restarts alongside the principal data.
type SessionStore struct {
	db          *gorm.DB
	stopCleanup chan bool
}

// NewSessionStore returns a SessionStore that prunes expired sessions
// every five minutes.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return NewSessionStoreWithCleanupInterval(db, 5*time.Minute)
}

// NewSessionStoreWithCleanupInterval returns a SessionStore with a custom
// cleanup interval. A zero or negative interval disables cleanup.
func NewSessionStoreWithCleanupInterval(db *gorm.DB, interval time.Duration) *SessionStore {
	s := &SessionStore{db: db}
	if interval > 0 {
		go s.startCleanup(interval)
	}
	return s
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	var model SessionModel
	err := s.db.First(&model, "token = ? AND expiry >= ?", token, time.Now()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return model.Data, true, nil
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	model := SessionModel{Token: token, Data: b, Expiry: expiry}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (s *SessionStore) Delete(token string) error {
	return s.db.Delete(&SessionModel{}, "token = ?", token).Error
}

func (s *SessionStore) startCleanup(interval time.Duration) {
	s.stopCleanup = make(chan bool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// StopCleanup terminates the background cleanup goroutine. Call it before
// closing the database when the store is short lived, as in tests.
func (s *SessionStore) StopCleanup() {
	if s.stopCleanup != nil {
		s.stopCleanup <- true
	}
}

func (s *SessionStore) deleteExpired() {
	s.db.Delete(&SessionModel{}, "expiry < ?", time.Now())
}
