// Package auth coordinates password verification and face verification
// into a single two-step login transaction, and owns the registration
// flow that enrolls a face signature alongside a new identity.
//
// Every operation returns a structured result or a *FlowError whose
// message is safe to show externally. The precise failure kind is
// logged here and never leaks to the caller in a distinguishable form.
package auth

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/facegate/facegate/pkg/imaging"
	"github.com/facegate/facegate/pkg/liveness"
	"github.com/facegate/facegate/pkg/logging"
	"github.com/facegate/facegate/pkg/notify"
	"github.com/facegate/facegate/pkg/session"
	"github.com/facegate/facegate/pkg/signature"
	"github.com/facegate/facegate/pkg/store"
)

// IdentityDirectory is the identity persistence collaborator.
type IdentityDirectory interface {
	Find(email string) (*store.Identity, error)
	Create(identity store.Identity, password string) error
	Delete(email string) error
	VerifyPassword(email, password string) bool
}

// SignatureStore is the durable signature association.
type SignatureStore interface {
	Put(email string, sig signature.Signature) error
	Get(email string) (signature.Signature, error)
	Exists(email string) bool
}

// LivenessChecker is the spoof gate.
type LivenessChecker interface {
	Check(frame *imaging.Frame) (liveness.Result, error)
}

// SignatureExtractor produces exactly one signature from a frame.
type SignatureExtractor interface {
	Extract(frame *imaging.Frame) (signature.Signature, error)
}

// SignatureMatcher compares a probe against a stored signature.
type SignatureMatcher interface {
	Match(probe, stored signature.Signature) (signature.MatchResult, error)
}

// PendingRegistry holds the state between the password and face steps.
type PendingRegistry interface {
	Issue(identity string) string
	Lookup(handle string) (*session.Pending, error)
	Consume(handle string) (*session.Pending, error)
}

// Deps collects the collaborators a Service is built from.
type Deps struct {
	Identities IdentityDirectory
	Signatures SignatureStore
	Liveness   LivenessChecker
	Extractor  SignatureExtractor
	Matcher    SignatureMatcher
	Pending    PendingRegistry
	Tokens     session.TokenIssuer
	Notifier   notify.Notifier
}

// Service implements the exposed authentication operations.
type Service struct {
	identities IdentityDirectory
	signatures SignatureStore
	liveness   LivenessChecker
	extractor  SignatureExtractor
	matcher    SignatureMatcher
	pending    PendingRegistry
	tokens     session.TokenIssuer
	notifier   notify.Notifier
	log        *logrus.Entry
}

// NewService creates a Service from its collaborators.
func NewService(deps Deps) *Service {
	return &Service{
		identities: deps.Identities,
		signatures: deps.Signatures,
		liveness:   deps.Liveness,
		extractor:  deps.Extractor,
		matcher:    deps.Matcher,
		pending:    deps.Pending,
		tokens:     deps.Tokens,
		notifier:   deps.Notifier,
		log:        logging.Component("auth"),
	}
}

// RegisterRequest enrolls a new identity with a face frame.
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Frame     string
}

// RegisterResult reports a completed registration.
type RegisterResult struct {
	Email string
}

// PasswordRequest is the first login factor.
type PasswordRequest struct {
	Email    string
	Password string
}

// PasswordResult carries the opaque handle for the face step.
type PasswordResult struct {
	Handle string
}

// FaceRequest is the second login factor.
type FaceRequest struct {
	Handle string
	Frame  string
}

// FaceResult carries the authenticated-session token.
type FaceResult struct {
	Identity string
	Token    string
}

// LivenessRequest probes a frame for liveness.
type LivenessRequest struct {
	Frame string
}

// LivenessResult reports the binary liveness verdict.
type LivenessResult struct {
	Live      bool
	Landmarks int
}

// Register validates the request, gates the frame through liveness,
// extracts exactly one signature, and persists identity and signature
// together. Any failure aborts the whole operation: a partially created
// identity is compensated by deletion so no identity exists without a
// signature and vice versa.
func (s *Service) Register(req RegisterRequest) (*RegisterResult, error) {
	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" || req.Frame == "" {
		return nil, flowErr(CodeIncompleteRequest, msgIncomplete)
	}

	frame, err := imaging.Decode(req.Frame)
	if err != nil {
		return nil, s.rejectRegister(req.Email, err)
	}

	live, err := s.liveness.Check(frame)
	if err != nil {
		return nil, s.rejectRegister(req.Email, err)
	}
	if !live.Live {
		s.log.WithField("email", req.Email).Infof("registration rejected by liveness gate: %s", live.Reason)
		return nil, flowErr(CodeNoFaceDetected, msgRegisterFailed)
	}

	sig, err := s.extractor.Extract(frame)
	if err != nil {
		return nil, s.rejectRegister(req.Email, err)
	}

	identity := store.Identity{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if err := s.identities.Create(identity, req.Password); err != nil {
		if errors.Is(err, store.ErrIdentityExists) {
			s.log.WithField("email", req.Email).Info("registration for existing identity rejected")
			return nil, flowErr(CodeInvalidCredentials, msgRegisterFailed)
		}
		s.log.WithError(err).Error("failed to create identity")
		return nil, flowErr(CodeInvalidCredentials, msgRegisterFailed)
	}

	if err := s.signatures.Put(req.Email, sig); err != nil {
		// Compensate: never leave an identity without a signature.
		if delErr := s.identities.Delete(req.Email); delErr != nil {
			s.log.WithError(delErr).Errorf("failed to roll back identity %s after signature store failure", req.Email)
		}
		s.log.WithError(err).Error("failed to store signature")
		return nil, flowErr(CodeInvalidCredentials, msgRegisterFailed)
	}

	s.log.WithField("email", req.Email).Info("registration complete")
	return &RegisterResult{Email: req.Email}, nil
}

// SubmitPassword checks the first factor. On success it opens a pending
// verification and returns its handle for the face step. Unknown
// accounts and wrong passwords produce the identical external outcome.
func (s *Service) SubmitPassword(req PasswordRequest) (*PasswordResult, error) {
	if req.Email == "" || req.Password == "" {
		return nil, flowErr(CodeIncompleteRequest, msgIncomplete)
	}

	if _, err := s.identities.Find(req.Email); err != nil {
		s.log.WithField("email", req.Email).Debug("password attempt for unknown identity")
		return nil, flowErr(CodeInvalidCredentials, msgLoginFailed)
	}

	if !s.identities.VerifyPassword(req.Email, req.Password) {
		s.log.WithField("email", req.Email).Info("password verification failed")
		s.notifier.Notify(notify.EventLoginFailed, req.Email)
		return nil, flowErr(CodeInvalidCredentials, msgLoginFailed)
	}

	handle := s.pending.Issue(req.Email)
	s.log.WithField("email", req.Email).Debug("password verified, awaiting face")
	return &PasswordResult{Handle: handle}, nil
}

// SubmitFace checks the second factor. On acceptance the pending record
// is consumed exactly once and a token is issued. Any pipeline failure
// leaves the pending record in place for a retry within its expiry
// window and yields one uniform rejection, whatever the actual cause.
func (s *Service) SubmitFace(req FaceRequest) (*FaceResult, error) {
	if req.Handle == "" || req.Frame == "" {
		return nil, flowErr(CodeIncompleteRequest, msgIncomplete)
	}

	pending, err := s.pending.Lookup(req.Handle)
	if err != nil {
		return nil, flowErr(CodeSessionExpired, msgSessionExpired)
	}
	email := pending.Identity

	if !s.signatures.Exists(email) {
		return nil, flowErr(CodeNoEnrolledFace, msgNoEnrolledFace)
	}

	frame, err := imaging.Decode(req.Frame)
	if err != nil {
		return nil, s.rejectFace(email, err)
	}

	live, err := s.liveness.Check(frame)
	if err != nil {
		return nil, s.rejectFace(email, err)
	}
	if !live.Live {
		s.log.WithField("email", email).Infof("face attempt rejected by liveness gate: %s", live.Reason)
		s.notifier.Notify(notify.EventLoginFailed, email)
		return nil, flowErr(CodeNoFaceDetected, msgFaceRejected)
	}

	probe, err := s.extractor.Extract(frame)
	if err != nil {
		return nil, s.rejectFace(email, err)
	}

	stored, err := s.signatures.Get(email)
	if err != nil {
		return nil, flowErr(CodeNoEnrolledFace, msgNoEnrolledFace)
	}

	match, err := s.matcher.Match(probe, stored)
	if err != nil {
		if errors.Is(err, signature.ErrDimensionMismatch) {
			// Invariant violation: signatures of differing length
			// coexist in the store. Operator problem, not a user one.
			s.log.WithField("email", email).Error("ALERT: signature dimension mismatch, possible store corruption")
			s.notifier.Notify(notify.EventLoginFailed, email)
			return nil, flowErr(CodeInvalidCredentials, msgFaceRejected)
		}
		return nil, s.rejectFace(email, err)
	}

	if !match.Accepted {
		s.log.WithFields(logging.Fields{
			"email":    email,
			"distance": match.Distance,
		}).Info("face mismatch")
		s.notifier.Notify(notify.EventLoginFailed, email)
		return nil, flowErr(CodeInvalidCredentials, msgFaceRejected)
	}

	// Consume only on acceptance. Of two concurrent matches on the same
	// handle, exactly one wins the consume.
	if _, err := s.pending.Consume(req.Handle); err != nil {
		return nil, flowErr(CodeSessionExpired, msgSessionExpired)
	}

	token, err := s.tokens.Issue(email)
	if err != nil {
		s.log.WithError(err).Error("failed to issue authenticated token")
		return nil, flowErr(CodeSessionExpired, msgSessionExpired)
	}

	s.log.WithFields(logging.Fields{
		"email":    email,
		"distance": match.Distance,
	}).Info("face verified, login complete")
	s.notifier.Notify(notify.EventLoginSucceeded, email)

	return &FaceResult{Identity: email, Token: token}, nil
}

// CheckLiveness probes a frame for liveness without touching any login
// state. Exposed so a capture UI can pre-check frames.
func (s *Service) CheckLiveness(req LivenessRequest) (*LivenessResult, error) {
	if req.Frame == "" {
		return nil, flowErr(CodeIncompleteRequest, msgIncomplete)
	}

	frame, err := imaging.Decode(req.Frame)
	if err != nil {
		s.log.WithError(err).Debug("liveness probe with undecodable frame")
		return nil, flowErr(CodeDecodeError, msgLivenessFailed)
	}

	result, err := s.liveness.Check(frame)
	if err != nil {
		s.log.WithError(err).Warn("liveness capability failure")
		return nil, flowErr(CodeNoCapabilityResult, msgLivenessFailed)
	}

	return &LivenessResult{Live: result.Live, Landmarks: result.Landmarks}, nil
}

// rejectFace logs the precise failure, notifies the account holder, and
// returns the uniform face rejection.
func (s *Service) rejectFace(email string, err error) *FlowError {
	code := classify(err)
	s.log.WithError(err).WithFields(logging.Fields{
		"email": email,
		"kind":  string(code),
	}).Info("face verification failed")
	s.notifier.Notify(notify.EventLoginFailed, email)
	return flowErr(code, msgFaceRejected)
}

// rejectRegister logs the precise failure and returns the uniform
// registration rejection.
func (s *Service) rejectRegister(email string, err error) *FlowError {
	code := classify(err)
	s.log.WithError(err).WithFields(logging.Fields{
		"email": email,
		"kind":  string(code),
	}).Info("registration failed")
	return flowErr(code, msgRegisterFailed)
}
