package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// FaceVerifier represents the external face verification capability.
type FaceVerifier interface {
	// Verify checks a captured face image for subject.
	// Returns whether the face was accepted and the verifier's confidence.
	Verify(ctx context.Context, subject string, image []byte) (bool, float64, error)
}

// MockFaceVerifier simulates an external face verification provider.
// It accepts any non-empty image with a fixed confidence.
type MockFaceVerifier struct {
	// Confidence reported for accepted images.
	Confidence float64
	// Threshold below which an image is rejected.
	Threshold float64
	// MaxDelay bounds the simulated provider latency. Zero disables it.
	MaxDelay time.Duration
}

// NewMockFaceVerifier creates a MockFaceVerifier with default settings.
func NewMockFaceVerifier() *MockFaceVerifier {
	return &MockFaceVerifier{
		Confidence: 0.95,
		Threshold:  0.8,
	}
}

// Verify simulates a call to a verification provider.
func (v *MockFaceVerifier) Verify(ctx context.Context, subject string, image []byte) (bool, float64, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, fmt.Errorf("face verification canceled: %w", err)
	}
	if v.MaxDelay > 0 {
		delay := time.Duration(rand.Int63n(int64(v.MaxDelay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, 0, fmt.Errorf("face verification canceled: %w", ctx.Err())
		}
	}

	if len(image) == 0 {
		return false, 0, nil
	}
	return v.Confidence >= v.Threshold, v.Confidence, nil
}
