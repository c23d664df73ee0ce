package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/facegate/facegate/pkg/logging"
)

// Identity is a stable user record keyed by email. The password hash
// never leaves this package; callers verify credentials through
// VerifyPassword.
type Identity struct {
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName returns the identity's display name.
func (i *Identity) FullName() string {
	return i.FirstName + " " + i.LastName
}

// FileIdentityStore keeps identity records as per-user files under
// <dataDir>/identities.
type FileIdentityStore struct {
	box *fileBox
}

// NewFileIdentityStore creates an identity store rooted at dataDir.
func NewFileIdentityStore(dataDir string, encrypted bool) (*FileIdentityStore, error) {
	box, err := newFileBox(filepath.Join(dataDir, "identities"), encrypted)
	if err != nil {
		return nil, err
	}
	return &FileIdentityStore{box: box}, nil
}

// Create hashes the password and persists a new identity record.
// Fails with ErrIdentityExists when the email is already registered.
func (s *FileIdentityStore) Create(identity Identity, password string) error {
	if s.box.exists(identity.Email) {
		return ErrIdentityExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	identity.PasswordHash = string(hash)
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}

	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := s.box.write(identity.Email, data); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}

	logging.Component("store").Debugf("created identity: %s", identity.Email)
	return nil
}

// Find loads the identity record for an email.
func (s *FileIdentityStore) Find(email string) (*Identity, error) {
	data, err := s.box.read(email)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	return &identity, nil
}

// Delete removes an identity record. Used to compensate a partially
// completed registration.
func (s *FileIdentityStore) Delete(email string) error {
	if err := s.box.remove(email); err != nil {
		if os.IsNotExist(err) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	logging.Component("store").Infof("deleted identity: %s", email)
	return nil
}

// List returns all registered emails.
func (s *FileIdentityStore) List() ([]string, error) {
	return s.box.list()
}

// VerifyPassword checks a plaintext password against the stored hash.
// An unknown email verifies false, indistinguishable from a wrong
// password for the caller.
func (s *FileIdentityStore) VerifyPassword(email, password string) bool {
	identity, err := s.Find(email)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) == nil
}
