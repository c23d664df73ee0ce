package auth

import (
	"errors"

	"github.com/facegate/facegate/pkg/imaging"
	"github.com/facegate/facegate/pkg/liveness"
	"github.com/facegate/facegate/pkg/signature"
	"github.com/facegate/facegate/pkg/store"
)

// Code identifies a specific flow failure.
type Code string

const (
	CodeDecodeError        Code = "DECODE_ERROR"
	CodeNoCapabilityResult Code = "NO_CAPABILITY_RESULT"
	CodeNoFaceDetected     Code = "NO_FACE_DETECTED"
	CodeAmbiguousFace      Code = "AMBIGUOUS_FACE"
	CodeSessionExpired     Code = "SESSION_EXPIRED"
	CodeNoEnrolledFace     Code = "NO_ENROLLED_FACE"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeIncompleteRequest  Code = "INCOMPLETE_REQUEST"
)

// Uniform external messages. Wrong-password, unknown-account and
// wrong-face outcomes must all read the same to an outside caller; the
// precise failure kind only ever reaches the log.
const (
	msgLoginFailed    = "invalid email or password"
	msgFaceRejected   = "face not recognized"
	msgRegisterFailed = "registration failed"
	msgSessionExpired = "session expired, please log in again"
	msgNoEnrolledFace = "no face data found, register your face first"
	msgIncomplete     = "all fields are required"
	msgLivenessFailed = "liveness check failed"
)

// FlowError is a typed flow failure: a taxonomy code for the routing
// layer plus a uniform user-facing message derived from it.
type FlowError struct {
	Code    Code
	Message string
}

func (e *FlowError) Error() string {
	return e.Message
}

func flowErr(code Code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// classify maps a pipeline error to its taxonomy code.
func classify(err error) Code {
	switch {
	case errors.Is(err, imaging.ErrDecode):
		return CodeDecodeError
	case errors.Is(err, signature.ErrNoFaceDetected):
		return CodeNoFaceDetected
	case errors.Is(err, signature.ErrAmbiguousFace):
		return CodeAmbiguousFace
	case errors.Is(err, liveness.ErrNoCapabilityResult):
		return CodeNoCapabilityResult
	case errors.Is(err, store.ErrNoSignature):
		return CodeNoEnrolledFace
	default:
		return CodeNoCapabilityResult
	}
}
