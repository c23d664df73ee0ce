package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/facegate/facegate/pkg/logging"
	"github.com/facegate/facegate/pkg/signature"
)

// signatureRecord is the on-disk form of an enrolled signature.
type signatureRecord struct {
	Email      string              `json:"email"`
	Signature  signature.Signature `json:"signature"`
	EnrolledAt time.Time           `json:"enrolled_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// FileSignatureStore keeps at most one signature per identity under
// <dataDir>/signatures. Writes are serialized per identity; writes to
// different identities do not interfere.
type FileSignatureStore struct {
	box *fileBox

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileSignatureStore creates a signature store rooted at dataDir.
func NewFileSignatureStore(dataDir string, encrypted bool) (*FileSignatureStore, error) {
	box, err := newFileBox(filepath.Join(dataDir, "signatures"), encrypted)
	if err != nil {
		return nil, err
	}
	return &FileSignatureStore{
		box:   box,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileSignatureStore) lockFor(email string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[email]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[email] = lock
	}
	return lock
}

// Put stores the signature for an identity, overwriting any prior one.
// Last write wins under concurrent writers for the same identity.
func (s *FileSignatureStore) Put(email string, sig signature.Signature) error {
	lock := s.lockFor(email)
	lock.Lock()
	defer lock.Unlock()

	record := signatureRecord{
		Email:      email,
		Signature:  sig.Clone(),
		EnrolledAt: time.Now(),
		UpdatedAt:  time.Now(),
	}
	if existing, err := s.load(email); err == nil {
		record.EnrolledAt = existing.EnrolledAt
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal signature record: %w", err)
	}
	if err := s.box.write(email, data); err != nil {
		return fmt.Errorf("failed to write signature record: %w", err)
	}

	logging.Component("store").Debugf("stored signature for: %s", email)
	return nil
}

// Get returns the stored signature for an identity, or ErrNoSignature.
func (s *FileSignatureStore) Get(email string) (signature.Signature, error) {
	record, err := s.load(email)
	if err != nil {
		return nil, err
	}
	return record.Signature.Clone(), nil
}

// Exists reports whether an identity has an enrolled signature.
func (s *FileSignatureStore) Exists(email string) bool {
	return s.box.exists(email)
}

// Delete removes the stored signature for an identity.
func (s *FileSignatureStore) Delete(email string) error {
	lock := s.lockFor(email)
	lock.Lock()
	defer lock.Unlock()

	if err := s.box.remove(email); err != nil {
		if os.IsNotExist(err) {
			return ErrNoSignature
		}
		return fmt.Errorf("failed to delete signature record: %w", err)
	}
	return nil
}

func (s *FileSignatureStore) load(email string) (*signatureRecord, error) {
	data, err := s.box.read(email)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSignature
		}
		return nil, fmt.Errorf("failed to read signature record: %w", err)
	}

	var record signatureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signature record: %w", err)
	}
	return &record, nil
}
