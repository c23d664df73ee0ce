// Package capability provides the production computer-vision capability
// backing the liveness and signature pipelines. It uses dlib via go-face
// for face detection, landmark extraction, and embedding generation.
//
// A single Dlib value is shared process-wide: model loading is lazy and
// guarded, so the capability can be constructed at startup and injected
// everywhere without paying the load cost until first use.
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/facegate/facegate/pkg/imaging"
	"github.com/facegate/facegate/pkg/liveness"
	"github.com/facegate/facegate/pkg/logging"
	"github.com/facegate/facegate/pkg/signature"
)

// ErrModelNotLoaded is returned when the dlib models cannot be loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// Dlib implements liveness.LandmarkDetector and signature.Embedder on
// top of go-face. Safe for concurrent use.
type Dlib struct {
	modelPath string

	mu     sync.Mutex
	rec    *face.Recognizer
	loaded bool
}

// NewDlib creates a Dlib capability. The model path should contain the
// dlib data files go-face expects:
//   - shape_predictor_5_face_landmarks.dat
//   - dlib_face_recognition_resnet_model_v1.dat
//   - mmod_human_face_detector.dat
func NewDlib(modelPath string) *Dlib {
	return &Dlib{modelPath: modelPath}
}

// ensureLoaded loads the models on first use.
func (d *Dlib) ensureLoaded() (*face.Recognizer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return d.rec, nil
	}

	logging.Infof("Loading face recognition models from: %s", d.modelPath)
	rec, err := face.NewRecognizer(d.modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
	}

	d.rec = rec
	d.loaded = true
	logging.Info("Face recognition models loaded")
	return d.rec, nil
}

// Close releases the recognizer resources.
func (d *Dlib) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	d.loaded = false
	return nil
}

// recognize runs dlib detection over the frame.
func (d *Dlib) recognize(frame *imaging.Frame) ([]face.Face, error) {
	rec, err := d.ensureLoaded()
	if err != nil {
		return nil, err
	}

	// go-face consumes encoded bytes, not raw buffers.
	data, err := frame.EncodeJPEG()
	if err != nil {
		return nil, err
	}

	faces, err := rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	return faces, nil
}

// DetectLandmarks reports the landmark set of the dominant face, or nil
// when no face is present.
func (d *Dlib) DetectLandmarks(frame *imaging.Frame) (*liveness.LandmarkSet, error) {
	faces, err := d.recognize(frame)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, nil
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if area(f) > area(best) {
			best = f
		}
	}

	logging.Component("dlib").Debugf("landmarks: %d points on dominant face", len(best.Shapes))
	return &liveness.LandmarkSet{Points: best.Shapes}, nil
}

// DetectAndEmbed returns one signature per detected face, in detection
// order. The single-face policy belongs to the caller.
func (d *Dlib) DetectAndEmbed(frame *imaging.Frame) ([]signature.Signature, error) {
	faces, err := d.recognize(frame)
	if err != nil {
		return nil, err
	}

	signatures := make([]signature.Signature, len(faces))
	for i, f := range faces {
		sig := make(signature.Signature, len(f.Descriptor))
		for j, v := range f.Descriptor {
			sig[j] = v
		}
		signatures[i] = sig
	}

	logging.Component("dlib").Debugf("detected %d face(s)", len(signatures))
	return signatures, nil
}

func area(f face.Face) int {
	return f.Rectangle.Dx() * f.Rectangle.Dy()
}
