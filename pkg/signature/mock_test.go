package signature

import (
	"github.com/facegate/facegate/pkg/imaging"
)

// MockEmbedder implements Embedder for testing
type MockEmbedder struct {
	DetectAndEmbedFunc func(frame *imaging.Frame) ([]Signature, error)
}

func (m *MockEmbedder) DetectAndEmbed(frame *imaging.Frame) ([]Signature, error) {
	if m.DetectAndEmbedFunc != nil {
		return m.DetectAndEmbedFunc(frame)
	}
	return nil, nil
}
