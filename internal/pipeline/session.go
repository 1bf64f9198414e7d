package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/aspect"
	"github.com/dudu/reframe/internal/frame"
	"github.com/dudu/reframe/internal/geometry"
	"github.com/dudu/reframe/internal/stabilizer"
	"github.com/dudu/reframe/internal/transform"
)

// State is the lifecycle stage of a session
type State int32

const (
	StateRunning State = iota
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Progress is a snapshot of how far a run has got
type Progress struct {
	SessionID string
	State     State
	Processed uint64
	Total     uint64
	// Percent is nondecreasing and reaches 100 only once the run completes
	Percent int
}

// Done reports whether the run finished successfully
func (p Progress) Done() bool {
	return p.State == StateComplete
}

// Timing holds per-stage durations of the last processed frame
type Timing struct {
	Detection time.Duration
	Transform time.Duration
	Stabilize time.Duration
	Total     time.Duration
}

// Session is everything one run owns: its dimensions, its stabilizer state
// and the frames it produced. Sessions are never reused across sources.
type Session struct {
	ID         string
	SourcePath string
	Source     geometry.Dimensions
	Output     geometry.Dimensions
	Ratio      aspect.Ratio
	StartedAt  time.Time

	stabilizer *stabilizer.Stabilizer
	frames     frame.Sequence
	lastTiming Timing

	processed atomic.Uint64
	total     atomic.Uint64
	state     atomic.Int32
}

func newSession(path string, src, out geometry.Dimensions, ratio aspect.Ratio, total int) (*Session, error) {
	stab, err := stabilizer.New(stabilizer.DefaultAlpha)
	if err != nil {
		return nil, fmt.Errorf("failed to create stabilizer: %w", err)
	}

	s := &Session{
		ID:         uuid.NewString(),
		SourcePath: path,
		Source:     src,
		Output:     out,
		Ratio:      ratio,
		StartedAt:  time.Now(),
		stabilizer: stab,
	}
	if total > 0 {
		s.total.Store(uint64(total))
		s.frames = make(frame.Sequence, 0, total)
	}
	return s, nil
}

// State returns the session's lifecycle stage
func (s *Session) State() State {
	return State(s.state.Load())
}

// Frames returns the produced frames. They stay owned by the session.
func (s *Session) Frames() frame.Sequence {
	return s.frames
}

// Len returns the number of produced frames
func (s *Session) Len() int {
	return len(s.frames)
}

// LastTiming returns timing from the last processed frame
func (s *Session) LastTiming() Timing {
	return s.lastTiming
}

// Progress returns a snapshot; safe to call from any goroutine
func (s *Session) Progress() Progress {
	state := s.State()
	processed := s.processed.Load()
	total := s.total.Load()
	return Progress{
		SessionID: s.ID,
		State:     state,
		Processed: processed,
		Total:     total,
		Percent:   percent(processed, total, state == StateComplete),
	}
}

func percent(processed, total uint64, complete bool) int {
	if complete {
		return 100
	}
	if total == 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 99 {
		p = 99
	}
	return int(p)
}

// processFrame runs detection, cropping and stabilization for the next frame
// in order and appends the result.
func (s *Session) processFrame(ctx context.Context, det LandmarkDetector, src gocv.Mat) (frame.Frame, error) {
	totalStart := time.Now()
	var timing Timing
	index := len(s.frames)

	detectStart := time.Now()
	landmarks := s.detect(ctx, det, src, index)
	timing.Detection = time.Since(detectStart)

	transformStart := time.Now()
	dims := geometry.Dimensions{Width: src.Cols(), Height: src.Rows()}
	win := geometry.ComputeCropWindow(dims, s.Ratio.Float64(), landmarks)
	cropped, err := transform.CropResize(src, win, s.Output)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("frame %d: %w", index, err)
	}
	defer cropped.Close()
	timing.Transform = time.Since(transformStart)

	stabilizeStart := time.Now()
	out, err := s.stabilizer.Apply(cropped)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("frame %d: stabilization failed: %w", index, err)
	}
	timing.Stabilize = time.Since(stabilizeStart)

	f := frame.Frame{Index: index, Mat: out}
	s.frames = append(s.frames, f)
	s.processed.Inc()

	timing.Total = time.Since(totalStart)
	s.lastTiming = timing

	logger.Tracef(ctx, "frame %d: window %s, landmarks %t, %v", index, win, landmarks.Present(), timing.Total)
	return f, nil
}

// detect never fails: a detector error is logged and treated as "no subject"
func (s *Session) detect(ctx context.Context, det LandmarkDetector, src gocv.Mat, index int) geometry.LandmarkSet {
	if det == nil {
		return nil
	}

	// Frames are BGR; the swap hands the detector RGB
	swapped := transform.SwapChannels(src)
	defer swapped.Close()

	landmarks, err := det.Detect(ctx, swapped)
	if err != nil {
		logger.Warnf(ctx, "frame %d: detection failed, using centered crop: %v", index, err)
		return nil
	}
	return landmarks
}

func (s *Session) complete() {
	s.stabilizer.Reset()
	s.state.Store(int32(StateComplete))
}

// abort marks the session failed and releases everything it produced
func (s *Session) abort() error {
	s.state.Store(int32(StateAborted))
	return s.release()
}

func (s *Session) release() error {
	var errs []error
	if s.stabilizer != nil {
		if err := s.stabilizer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.frames.Close(); err != nil {
		errs = append(errs, err)
	}
	s.frames = nil
	return errors.Join(errs...)
}

// Close releases the session's frames
func (s *Session) Close() error {
	return s.release()
}
