// Package signature defines the facial signature data model, the
// exactly-one-face extraction policy, and distance-based matching.
package signature

import (
	"errors"
	"fmt"

	"github.com/facegate/facegate/pkg/imaging"
	"github.com/facegate/facegate/pkg/logging"
)

// Signature is a fixed-length numeric vector representing a face.
// Its dimensionality is fixed by the embedding capability (128 for the
// dlib ResNet model); individual components carry no meaning, only
// pairwise distance does.
type Signature []float32

// ErrNoFaceDetected is returned when no face is found in the frame.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrAmbiguousFace is returned when more than one face is found.
// Guessing which face is the subject is a rejected policy.
var ErrAmbiguousFace = errors.New("multiple faces detected")

// Clone returns an independent copy of the signature.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	out := make(Signature, len(s))
	copy(out, s)
	return out
}

// Embedder is the external face-detection + embedding capability.
// It returns one signature per detected face, in detection order.
type Embedder interface {
	DetectAndEmbed(frame *imaging.Frame) ([]Signature, error)
}

// Extractor produces exactly one signature from a frame known to
// contain one face.
type Extractor struct {
	embedder Embedder
}

// NewExtractor creates an Extractor backed by the given capability.
func NewExtractor(embedder Embedder) *Extractor {
	return &Extractor{embedder: embedder}
}

// Extract runs detection + embedding and enforces the single-face policy.
func (e *Extractor) Extract(frame *imaging.Frame) (Signature, error) {
	signatures, err := e.embedder.DetectAndEmbed(frame)
	if err != nil {
		return nil, fmt.Errorf("detect and embed: %w", err)
	}

	switch n := len(signatures); {
	case n == 0:
		return nil, ErrNoFaceDetected
	case n > 1:
		logging.Component("extractor").Debugf("rejecting frame with %d faces", n)
		return nil, ErrAmbiguousFace
	}

	return signatures[0], nil
}
