// Package liveness decides whether a captured frame depicts a live face
// or a spoof (photo, mask, replayed screen). The decision is a binary
// gate over the landmark geometry reported by an external capability,
// not a confidence score: callers must treat a spoof verdict as a hard
// rejection.
package liveness

import (
	"errors"
	"fmt"
	"image"

	"github.com/facegate/facegate/pkg/imaging"
	"github.com/facegate/facegate/pkg/logging"
)

// ErrNoCapabilityResult is returned when the landmark capability itself
// fails, as opposed to a confident "no landmarks found" determination.
var ErrNoCapabilityResult = errors.New("landmark capability returned no result")

// LandmarkSet is the dense landmark map reported by the capability for
// the dominant face in a frame.
type LandmarkSet struct {
	Points []image.Point
}

// LandmarkDetector is the external landmark/geometry capability.
// A nil set with a nil error means no landmarks were found, which is a
// determination, not a failure.
type LandmarkDetector interface {
	DetectLandmarks(frame *imaging.Frame) (*LandmarkSet, error)
}

// Result is the outcome of a liveness check.
type Result struct {
	Live      bool
	Landmarks int
	Reason    string
}

// Config holds the landmark-completeness thresholds.
type Config struct {
	// MinLandmarks is the minimum landmark count for a live verdict.
	MinLandmarks int
	// MinSpread is the minimum fraction of the frame area the landmark
	// bounding box must cover. Guards against tiny replayed faces.
	MinSpread float64
}

// Detector implements the liveness gate.
type Detector struct {
	landmarks LandmarkDetector
	cfg       Config
}

// NewDetector creates a Detector over the given landmark capability.
func NewDetector(landmarks LandmarkDetector, cfg Config) *Detector {
	if cfg.MinLandmarks <= 0 {
		cfg.MinLandmarks = 5
	}
	return &Detector{landmarks: landmarks, cfg: cfg}
}

// Check runs the liveness gate on a frame.
func (d *Detector) Check(frame *imaging.Frame) (Result, error) {
	set, err := d.landmarks.DetectLandmarks(frame)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNoCapabilityResult, err)
	}

	if set == nil || len(set.Points) == 0 {
		return Result{Live: false, Reason: "no facial landmarks found"}, nil
	}

	if len(set.Points) < d.cfg.MinLandmarks {
		logging.Component("liveness").Debugf("landmark count %d below minimum %d",
			len(set.Points), d.cfg.MinLandmarks)
		return Result{
			Live:      false,
			Landmarks: len(set.Points),
			Reason:    "incomplete landmark set",
		}, nil
	}

	if d.cfg.MinSpread > 0 && spread(set.Points, frame) < d.cfg.MinSpread {
		return Result{
			Live:      false,
			Landmarks: len(set.Points),
			Reason:    "landmark geometry too small for a live capture",
		}, nil
	}

	return Result{Live: true, Landmarks: len(set.Points)}, nil
}

// spread returns the fraction of the frame area covered by the landmark
// bounding box.
func spread(points []image.Point, frame *imaging.Frame) float64 {
	if frame.Width == 0 || frame.Height == 0 {
		return 0
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	boxArea := float64(maxX-minX) * float64(maxY-minY)
	return boxArea / (float64(frame.Width) * float64(frame.Height))
}
