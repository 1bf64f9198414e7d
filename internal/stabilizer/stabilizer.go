// Package stabilizer smooths consecutive output frames with an exponential
// blend in pixel space.
package stabilizer

import (
	"fmt"

	"gocv.io/x/gocv"
)

// DefaultAlpha is the weight of the current frame in the blend
const DefaultAlpha = 0.7

// Stabilizer keeps the last emitted frame and blends each new frame with it:
//
//	out = alpha*current + (1-alpha)*previous
//
// Frames must be applied in source order. A Stabilizer is not safe for
// concurrent use and must not be shared between runs.
type Stabilizer struct {
	alpha    float64
	previous gocv.Mat
	hasState bool
}

// New creates a stabilizer with the given blend weight in (0, 1]
func New(alpha float64) (*Stabilizer, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1], got %v", alpha)
	}
	return &Stabilizer{alpha: alpha}, nil
}

// Alpha returns the blend weight
func (s *Stabilizer) Alpha() float64 {
	return s.alpha
}

// HasState reports whether a previous frame is held
func (s *Stabilizer) HasState() bool {
	return s.hasState
}

// Apply blends current with the previous output and returns the new output.
// The first frame passes through unchanged. The caller owns the returned Mat;
// current is not modified.
func (s *Stabilizer) Apply(current gocv.Mat) (gocv.Mat, error) {
	if current.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty frame")
	}

	if !s.hasState {
		out := current.Clone()
		s.remember(out)
		return out, nil
	}

	if current.Rows() != s.previous.Rows() || current.Cols() != s.previous.Cols() ||
		current.Type() != s.previous.Type() {
		return gocv.NewMat(), fmt.Errorf("frame %dx%d does not match previous %dx%d",
			current.Cols(), current.Rows(), s.previous.Cols(), s.previous.Rows())
	}

	// AddWeighted saturates 8-bit results to [0, 255]
	out := gocv.NewMat()
	gocv.AddWeighted(current, s.alpha, s.previous, 1-s.alpha, 0, &out)
	s.remember(out)
	return out, nil
}

// Reset drops the held frame so the next Apply passes through
func (s *Stabilizer) Reset() {
	if s.hasState {
		s.previous.Close()
	}
	s.previous = gocv.Mat{}
	s.hasState = false
}

// Close releases the held frame
func (s *Stabilizer) Close() error {
	s.Reset()
	return nil
}

func (s *Stabilizer) remember(out gocv.Mat) {
	if s.hasState {
		s.previous.Close()
	}
	s.previous = out.Clone()
	s.hasState = true
}
