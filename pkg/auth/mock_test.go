package auth

import (
	"sync"

	"github.com/facegate/facegate/pkg/imaging"
	"github.com/facegate/facegate/pkg/liveness"
	"github.com/facegate/facegate/pkg/notify"
	"github.com/facegate/facegate/pkg/signature"
	"github.com/facegate/facegate/pkg/store"
)

// MockIdentityDirectory implements IdentityDirectory for testing
type MockIdentityDirectory struct {
	FindFunc           func(email string) (*store.Identity, error)
	CreateFunc         func(identity store.Identity, password string) error
	DeleteFunc         func(email string) error
	VerifyPasswordFunc func(email, password string) bool

	CreatedEmails []string
	DeletedEmails []string
}

func (m *MockIdentityDirectory) Find(email string) (*store.Identity, error) {
	if m.FindFunc != nil {
		return m.FindFunc(email)
	}
	return nil, store.ErrIdentityNotFound
}

func (m *MockIdentityDirectory) Create(identity store.Identity, password string) error {
	m.CreatedEmails = append(m.CreatedEmails, identity.Email)
	if m.CreateFunc != nil {
		return m.CreateFunc(identity, password)
	}
	return nil
}

func (m *MockIdentityDirectory) Delete(email string) error {
	m.DeletedEmails = append(m.DeletedEmails, email)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(email)
	}
	return nil
}

func (m *MockIdentityDirectory) VerifyPassword(email, password string) bool {
	if m.VerifyPasswordFunc != nil {
		return m.VerifyPasswordFunc(email, password)
	}
	return false
}

// MockSignatureStore implements SignatureStore for testing
type MockSignatureStore struct {
	PutFunc    func(email string, sig signature.Signature) error
	GetFunc    func(email string) (signature.Signature, error)
	ExistsFunc func(email string) bool
}

func (m *MockSignatureStore) Put(email string, sig signature.Signature) error {
	if m.PutFunc != nil {
		return m.PutFunc(email, sig)
	}
	return nil
}

func (m *MockSignatureStore) Get(email string) (signature.Signature, error) {
	if m.GetFunc != nil {
		return m.GetFunc(email)
	}
	return nil, store.ErrNoSignature
}

func (m *MockSignatureStore) Exists(email string) bool {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(email)
	}
	return false
}

// memSignatureStore is a map-backed SignatureStore for round-trip tests
type memSignatureStore struct {
	mu   sync.Mutex
	sigs map[string]signature.Signature
}

func newMemSignatureStore() *memSignatureStore {
	return &memSignatureStore{sigs: make(map[string]signature.Signature)}
}

func (m *memSignatureStore) Put(email string, sig signature.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigs[email] = sig.Clone()
	return nil
}

func (m *memSignatureStore) Get(email string) (signature.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.sigs[email]
	if !ok {
		return nil, store.ErrNoSignature
	}
	return sig.Clone(), nil
}

func (m *memSignatureStore) Exists(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sigs[email]
	return ok
}

// MockLivenessChecker implements LivenessChecker for testing
type MockLivenessChecker struct {
	CheckFunc func(frame *imaging.Frame) (liveness.Result, error)
}

func (m *MockLivenessChecker) Check(frame *imaging.Frame) (liveness.Result, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(frame)
	}
	return liveness.Result{Live: true, Landmarks: 5}, nil
}

// MockExtractor implements SignatureExtractor for testing
type MockExtractor struct {
	ExtractFunc func(frame *imaging.Frame) (signature.Signature, error)
}

func (m *MockExtractor) Extract(frame *imaging.Frame) (signature.Signature, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(frame)
	}
	return nil, signature.ErrNoFaceDetected
}

// MockMatcher implements SignatureMatcher for testing
type MockMatcher struct {
	MatchFunc func(probe, stored signature.Signature) (signature.MatchResult, error)
}

func (m *MockMatcher) Match(probe, stored signature.Signature) (signature.MatchResult, error) {
	if m.MatchFunc != nil {
		return m.MatchFunc(probe, stored)
	}
	return signature.MatchResult{}, nil
}

// MockTokenIssuer implements session.TokenIssuer for testing
type MockTokenIssuer struct {
	IssueFunc func(identity string) (string, error)
}

func (m *MockTokenIssuer) Issue(identity string) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(identity)
	}
	return "token-" + identity, nil
}

// MockNotifier records notifications for assertions
type MockNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

type notifiedEvent struct {
	Event     notify.Event
	Recipient string
}

func (m *MockNotifier) Notify(event notify.Event, recipient string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, notifiedEvent{Event: event, Recipient: recipient})
}

func (m *MockNotifier) Events() []notifiedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notifiedEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockNotifier) CountOf(event notify.Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Event == event {
			n++
		}
	}
	return n
}
