package signature

import (
	"errors"
	"math"
)

// DefaultThreshold is the default maximum Euclidean distance for two
// signatures to be considered the same person. Deployments tune this to
// trade false accepts against false rejects.
const DefaultThreshold = 0.6

// ErrDimensionMismatch is returned when two signatures differ in length.
// The store keeps dimensionality constant, so hitting this indicates
// corrupted data rather than a bad capture.
var ErrDimensionMismatch = errors.New("signature dimension mismatch")

// MatchResult is the outcome of comparing two signatures. It is a
// short-lived value and is never persisted.
type MatchResult struct {
	Accepted bool
	Distance float64
}

// Matcher compares signatures against a configurable distance threshold.
// It performs no I/O and is safe for concurrent use.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a Matcher. A non-positive threshold selects
// DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match computes the Euclidean distance between probe and stored and
// accepts when it does not exceed the threshold.
func (m *Matcher) Match(probe, stored Signature) (MatchResult, error) {
	distance, err := Distance(probe, stored)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{
		Accepted: distance <= m.threshold,
		Distance: distance,
	}, nil
}

// Distance computes the Euclidean distance between two equal-length
// signatures.
func Distance(a, b Signature) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum), nil
}
