package auth

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/facegate/facegate/pkg/imaging"
	"github.com/facegate/facegate/pkg/liveness"
	"github.com/facegate/facegate/pkg/notify"
	"github.com/facegate/facegate/pkg/session"
	"github.com/facegate/facegate/pkg/signature"
	"github.com/facegate/facegate/pkg/store"
)

// framePayload returns a decodable data-URI JPEG payload.
func framePayload(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func fixedSignature(seed float32) signature.Signature {
	sig := make(signature.Signature, 128)
	for i := range sig {
		sig[i] = seed
	}
	return sig
}

func wantFlowCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a flow error, got nil")
	}
	var fe *FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FlowError, got %T: %v", err, err)
	}
	if fe.Code != code {
		t.Errorf("expected code %s, got %s (%s)", code, fe.Code, fe.Message)
	}
}

// testService wires a Service with a real pending registry and matcher
// and mocks everywhere else, overridable per test.
type testDeps struct {
	identities *MockIdentityDirectory
	signatures SignatureStore
	liveness   *MockLivenessChecker
	extractor  *MockExtractor
	registry   *session.Registry
	notifier   *MockNotifier
}

func newTestService(t *testing.T, d testDeps) *Service {
	t.Helper()
	if d.identities == nil {
		d.identities = &MockIdentityDirectory{}
	}
	if d.signatures == nil {
		d.signatures = &MockSignatureStore{}
	}
	if d.liveness == nil {
		d.liveness = &MockLivenessChecker{}
	}
	if d.extractor == nil {
		d.extractor = &MockExtractor{}
	}
	if d.registry == nil {
		d.registry = session.NewRegistry(time.Minute)
		t.Cleanup(d.registry.Close)
	}
	if d.notifier == nil {
		d.notifier = &MockNotifier{}
	}
	return NewService(Deps{
		Identities: d.identities,
		Signatures: d.signatures,
		Liveness:   d.liveness,
		Extractor:  d.extractor,
		Matcher:    signature.NewMatcher(0.6),
		Pending:    d.registry,
		Tokens:     &MockTokenIssuer{},
		Notifier:   d.notifier,
	})
}

func TestRegister(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		sigs := newMemSignatureStore()
		identities := &MockIdentityDirectory{}
		svc := newTestService(t, testDeps{
			identities: identities,
			signatures: sigs,
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return fixedSignature(0.5), nil
				},
			},
		})

		result, err := svc.Register(RegisterRequest{
			FirstName: "Alice", LastName: "Smith",
			Email: "alice@example.com", Password: "P@ss1",
			Frame: framePayload(t),
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if result.Email != "alice@example.com" {
			t.Errorf("unexpected result email: %s", result.Email)
		}
		if len(identities.CreatedEmails) != 1 {
			t.Errorf("expected 1 identity created, got %d", len(identities.CreatedEmails))
		}
		if !sigs.Exists("alice@example.com") {
			t.Error("signature was not stored")
		}
	})

	t.Run("IncompleteRequest", func(t *testing.T) {
		svc := newTestService(t, testDeps{})
		_, err := svc.Register(RegisterRequest{Email: "alice@example.com"})
		wantFlowCode(t, err, CodeIncompleteRequest)
	})

	t.Run("UndecodableFrame", func(t *testing.T) {
		identities := &MockIdentityDirectory{}
		svc := newTestService(t, testDeps{identities: identities})

		_, err := svc.Register(RegisterRequest{
			FirstName: "Alice", LastName: "Smith",
			Email: "alice@example.com", Password: "P@ss1",
			Frame: "!!garbage!!",
		})
		wantFlowCode(t, err, CodeDecodeError)
		if len(identities.CreatedEmails) != 0 {
			t.Error("no identity should be created for an undecodable frame")
		}
	})

	t.Run("TwoFacesNothingPersisted", func(t *testing.T) {
		sigs := newMemSignatureStore()
		identities := &MockIdentityDirectory{}
		svc := newTestService(t, testDeps{
			identities: identities,
			signatures: sigs,
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return nil, signature.ErrAmbiguousFace
				},
			},
		})

		_, err := svc.Register(RegisterRequest{
			FirstName: "Bob", LastName: "Jones",
			Email: "bob@example.com", Password: "pw",
			Frame: framePayload(t),
		})
		wantFlowCode(t, err, CodeAmbiguousFace)
		if len(identities.CreatedEmails) != 0 {
			t.Error("no identity should be persisted when extraction fails")
		}
		if sigs.Exists("bob@example.com") {
			t.Error("no signature should be persisted when extraction fails")
		}
	})

	t.Run("SpoofRejected", func(t *testing.T) {
		identities := &MockIdentityDirectory{}
		svc := newTestService(t, testDeps{
			identities: identities,
			liveness: &MockLivenessChecker{
				CheckFunc: func(f *imaging.Frame) (liveness.Result, error) {
					return liveness.Result{Live: false, Reason: "no facial landmarks found"}, nil
				},
			},
		})

		_, err := svc.Register(RegisterRequest{
			FirstName: "Carl", LastName: "Doe",
			Email: "carl@example.com", Password: "pw",
			Frame: framePayload(t),
		})
		if err == nil {
			t.Fatal("expected registration to fail the liveness gate")
		}
		if len(identities.CreatedEmails) != 0 {
			t.Error("no identity should be persisted when liveness fails")
		}
	})

	t.Run("SignatureStoreFailureRollsBackIdentity", func(t *testing.T) {
		identities := &MockIdentityDirectory{}
		svc := newTestService(t, testDeps{
			identities: identities,
			signatures: &MockSignatureStore{
				PutFunc: func(email string, sig signature.Signature) error {
					return errors.New("disk full")
				},
			},
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return fixedSignature(0.5), nil
				},
			},
		})

		_, err := svc.Register(RegisterRequest{
			FirstName: "Dana", LastName: "Lee",
			Email: "dana@example.com", Password: "pw",
			Frame: framePayload(t),
		})
		if err == nil {
			t.Fatal("expected registration to fail")
		}
		if len(identities.DeletedEmails) != 1 || identities.DeletedEmails[0] != "dana@example.com" {
			t.Errorf("expected compensating identity delete, got %v", identities.DeletedEmails)
		}
	})

	t.Run("DuplicateIdentity", func(t *testing.T) {
		svc := newTestService(t, testDeps{
			identities: &MockIdentityDirectory{
				CreateFunc: func(identity store.Identity, password string) error {
					return store.ErrIdentityExists
				},
			},
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return fixedSignature(0.5), nil
				},
			},
		})

		_, err := svc.Register(RegisterRequest{
			FirstName: "Eve", LastName: "Adams",
			Email: "eve@example.com", Password: "pw",
			Frame: framePayload(t),
		})
		wantFlowCode(t, err, CodeInvalidCredentials)
	})
}

func TestSubmitPassword(t *testing.T) {
	knownIdentity := func(email string) (*store.Identity, error) {
		if email == "alice@example.com" {
			return &store.Identity{Email: email, FirstName: "Alice"}, nil
		}
		return nil, store.ErrIdentityNotFound
	}

	t.Run("Success", func(t *testing.T) {
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		svc := newTestService(t, testDeps{
			identities: &MockIdentityDirectory{
				FindFunc:           knownIdentity,
				VerifyPasswordFunc: func(email, password string) bool { return password == "P@ss1" },
			},
			registry: registry,
		})

		result, err := svc.SubmitPassword(PasswordRequest{Email: "alice@example.com", Password: "P@ss1"})
		if err != nil {
			t.Fatalf("SubmitPassword failed: %v", err)
		}
		if result.Handle == "" {
			t.Fatal("expected a pending handle")
		}
		p, err := registry.Lookup(result.Handle)
		if err != nil {
			t.Fatalf("pending record missing: %v", err)
		}
		if p.Identity != "alice@example.com" {
			t.Errorf("pending bound to %s, want alice@example.com", p.Identity)
		}
	})

	t.Run("WrongPasswordNotifies", func(t *testing.T) {
		notifier := &MockNotifier{}
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		svc := newTestService(t, testDeps{
			identities: &MockIdentityDirectory{
				FindFunc:           knownIdentity,
				VerifyPasswordFunc: func(email, password string) bool { return false },
			},
			registry: registry,
			notifier: notifier,
		})

		_, err := svc.SubmitPassword(PasswordRequest{Email: "alice@example.com", Password: "wrong"})
		wantFlowCode(t, err, CodeInvalidCredentials)
		if notifier.CountOf(notify.EventLoginFailed) != 1 {
			t.Error("expected a LoginFailed notification for wrong password on existing account")
		}
		if registry.Len() != 0 {
			t.Error("no pending verification should be created on failure")
		}
	})

	t.Run("UnknownIdentitySameOutcomeNoNotify", func(t *testing.T) {
		notifier := &MockNotifier{}
		svc := newTestService(t, testDeps{
			identities: &MockIdentityDirectory{FindFunc: knownIdentity},
			notifier:   notifier,
		})

		_, err := svc.SubmitPassword(PasswordRequest{Email: "ghost@example.com", Password: "whatever"})
		wantFlowCode(t, err, CodeInvalidCredentials)

		var fe *FlowError
		errors.As(err, &fe)
		if fe.Message != msgLoginFailed {
			t.Errorf("unknown-identity message %q must match wrong-password message %q", fe.Message, msgLoginFailed)
		}
		if notifier.CountOf(notify.EventLoginFailed) != 0 {
			t.Error("no notification should fire for an unknown identity")
		}
	})

	t.Run("IncompleteRequest", func(t *testing.T) {
		svc := newTestService(t, testDeps{})
		_, err := svc.SubmitPassword(PasswordRequest{Email: "alice@example.com"})
		wantFlowCode(t, err, CodeIncompleteRequest)
	})
}

func TestSubmitFace(t *testing.T) {
	enrolled := func(sig signature.Signature) *memSignatureStore {
		s := newMemSignatureStore()
		_ = s.Put("alice@example.com", sig)
		return s
	}

	t.Run("RoundTripSameFrame", func(t *testing.T) {
		// An enrolled face authenticates against itself: the same frame
		// yields the same signature, distance 0.
		sig := fixedSignature(0.5)
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		notifier := &MockNotifier{}
		svc := newTestService(t, testDeps{
			signatures: enrolled(sig),
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return sig.Clone(), nil
				},
			},
			registry: registry,
			notifier: notifier,
		})

		handle := registry.Issue("alice@example.com")
		result, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		if err != nil {
			t.Fatalf("SubmitFace failed: %v", err)
		}
		if result.Token == "" {
			t.Error("expected an authenticated token")
		}
		if result.Identity != "alice@example.com" {
			t.Errorf("unexpected identity: %s", result.Identity)
		}
		if notifier.CountOf(notify.EventLoginSucceeded) != 1 {
			t.Error("expected a LoginSucceeded notification")
		}

		// The handle is consumed: replaying it fails.
		_, err = svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		wantFlowCode(t, err, CodeSessionExpired)
	})

	t.Run("ExpiredPendingBeatsMatchingFrame", func(t *testing.T) {
		sig := fixedSignature(0.5)
		registry := session.NewRegistry(10 * time.Millisecond)
		t.Cleanup(registry.Close)
		svc := newTestService(t, testDeps{
			signatures: enrolled(sig),
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return sig.Clone(), nil
				},
			},
			registry: registry,
		})

		handle := registry.Issue("alice@example.com")
		time.Sleep(30 * time.Millisecond)

		_, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		wantFlowCode(t, err, CodeSessionExpired)
	})

	t.Run("NoEnrolledFace", func(t *testing.T) {
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		svc := newTestService(t, testDeps{registry: registry})

		handle := registry.Issue("alice@example.com")
		_, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		wantFlowCode(t, err, CodeNoEnrolledFace)
	})

	t.Run("NoFaceDoesNotConsumePending", func(t *testing.T) {
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		notifier := &MockNotifier{}
		svc := newTestService(t, testDeps{
			signatures: enrolled(fixedSignature(0.5)),
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return nil, signature.ErrNoFaceDetected
				},
			},
			registry: registry,
			notifier: notifier,
		})

		handle := registry.Issue("alice@example.com")
		_, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		if err == nil {
			t.Fatal("expected rejection for a frame with no face")
		}
		var fe *FlowError
		errors.As(err, &fe)
		if fe.Message != msgFaceRejected {
			t.Errorf("expected uniform rejection message, got %q", fe.Message)
		}
		if notifier.CountOf(notify.EventLoginFailed) != 1 {
			t.Error("expected a LoginFailed notification")
		}

		// Pending survives for a retry within the expiry window.
		if _, err := registry.Lookup(handle); err != nil {
			t.Errorf("pending record should not be consumed on failure: %v", err)
		}
	})

	t.Run("MismatchUniformOutcome", func(t *testing.T) {
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		notifier := &MockNotifier{}
		svc := newTestService(t, testDeps{
			signatures: enrolled(fixedSignature(0.0)),
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return fixedSignature(0.9), nil // distance far above threshold
				},
			},
			registry: registry,
			notifier: notifier,
		})

		handle := registry.Issue("alice@example.com")
		_, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		if err == nil {
			t.Fatal("expected rejection for a mismatched face")
		}
		var fe *FlowError
		errors.As(err, &fe)
		if fe.Message != msgFaceRejected {
			t.Errorf("mismatch message %q must equal the no-face message %q", fe.Message, msgFaceRejected)
		}
		if notifier.CountOf(notify.EventLoginFailed) != 1 {
			t.Error("expected a LoginFailed notification")
		}
		if _, err := registry.Lookup(handle); err != nil {
			t.Errorf("pending record should survive a mismatch: %v", err)
		}
	})

	t.Run("DimensionMismatchHiddenFromCaller", func(t *testing.T) {
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		svc := newTestService(t, testDeps{
			signatures: enrolled(make(signature.Signature, 64)), // corrupted store
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return fixedSignature(0.5), nil
				},
			},
			registry: registry,
		})

		handle := registry.Issue("alice@example.com")
		_, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		if err == nil {
			t.Fatal("expected rejection")
		}
		var fe *FlowError
		errors.As(err, &fe)
		if fe.Message != msgFaceRejected {
			t.Errorf("dimension mismatch leaked a distinct message: %q", fe.Message)
		}
		if fe.Code == "DIMENSION_MISMATCH" {
			t.Error("dimension mismatch must not be visible to external callers")
		}
	})

	t.Run("SpoofRejected", func(t *testing.T) {
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		svc := newTestService(t, testDeps{
			signatures: enrolled(fixedSignature(0.5)),
			liveness: &MockLivenessChecker{
				CheckFunc: func(f *imaging.Frame) (liveness.Result, error) {
					return liveness.Result{Live: false, Reason: "incomplete landmark set"}, nil
				},
			},
			registry: registry,
		})

		handle := registry.Issue("alice@example.com")
		_, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: framePayload(t)})
		if err == nil {
			t.Fatal("expected rejection for a spoofed frame")
		}
		var fe *FlowError
		errors.As(err, &fe)
		if fe.Message != msgFaceRejected {
			t.Errorf("expected uniform rejection message, got %q", fe.Message)
		}
	})

	t.Run("ConcurrentSubmitsOneWinner", func(t *testing.T) {
		sig := fixedSignature(0.5)
		registry := session.NewRegistry(time.Minute)
		t.Cleanup(registry.Close)
		svc := newTestService(t, testDeps{
			signatures: enrolled(sig),
			extractor: &MockExtractor{
				ExtractFunc: func(f *imaging.Frame) (signature.Signature, error) {
					return sig.Clone(), nil
				},
			},
			registry: registry,
		})

		handle := registry.Issue("alice@example.com")
		frame := framePayload(t)

		const workers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		authenticated := 0
		expired := 0

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.SubmitFace(FaceRequest{Handle: handle, Frame: frame})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					authenticated++
					return
				}
				var fe *FlowError
				if errors.As(err, &fe) && fe.Code == CodeSessionExpired {
					expired++
				}
			}()
		}
		wg.Wait()

		if authenticated != 1 {
			t.Errorf("expected exactly 1 authenticated caller, got %d", authenticated)
		}
		if authenticated+expired != workers {
			t.Errorf("expected the other %d callers to observe session expiry, got %d", workers-1, expired)
		}
	})

	t.Run("IncompleteRequest", func(t *testing.T) {
		svc := newTestService(t, testDeps{})
		_, err := svc.SubmitFace(FaceRequest{Handle: "h"})
		wantFlowCode(t, err, CodeIncompleteRequest)
	})
}

func TestCheckLiveness(t *testing.T) {
	t.Run("Live", func(t *testing.T) {
		svc := newTestService(t, testDeps{
			liveness: &MockLivenessChecker{
				CheckFunc: func(f *imaging.Frame) (liveness.Result, error) {
					return liveness.Result{Live: true, Landmarks: 5}, nil
				},
			},
		})

		result, err := svc.CheckLiveness(LivenessRequest{Frame: framePayload(t)})
		if err != nil {
			t.Fatalf("CheckLiveness failed: %v", err)
		}
		if !result.Live || result.Landmarks != 5 {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("Spoof", func(t *testing.T) {
		svc := newTestService(t, testDeps{
			liveness: &MockLivenessChecker{
				CheckFunc: func(f *imaging.Frame) (liveness.Result, error) {
					return liveness.Result{Live: false}, nil
				},
			},
		})

		result, err := svc.CheckLiveness(LivenessRequest{Frame: framePayload(t)})
		if err != nil {
			t.Fatalf("CheckLiveness failed: %v", err)
		}
		if result.Live {
			t.Error("expected spoof verdict")
		}
	})

	t.Run("DecodeError", func(t *testing.T) {
		svc := newTestService(t, testDeps{})
		_, err := svc.CheckLiveness(LivenessRequest{Frame: "!!garbage!!"})
		wantFlowCode(t, err, CodeDecodeError)
	})

	t.Run("CapabilityFailure", func(t *testing.T) {
		svc := newTestService(t, testDeps{
			liveness: &MockLivenessChecker{
				CheckFunc: func(f *imaging.Frame) (liveness.Result, error) {
					return liveness.Result{}, liveness.ErrNoCapabilityResult
				},
			},
		})

		_, err := svc.CheckLiveness(LivenessRequest{Frame: framePayload(t)})
		wantFlowCode(t, err, CodeNoCapabilityResult)
	})

	t.Run("IncompleteRequest", func(t *testing.T) {
		svc := newTestService(t, testDeps{})
		_, err := svc.CheckLiveness(LivenessRequest{})
		wantFlowCode(t, err, CodeIncompleteRequest)
	})
}
