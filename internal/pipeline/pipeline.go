// Package pipeline runs the per-frame reframing loop over a video and keeps
// the result of the last run ready for export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/aspect"
	"github.com/dudu/reframe/internal/frame"
	"github.com/dudu/reframe/internal/geometry"
)

// ExportFrameRate is the frame rate of every exported video
const ExportFrameRate = 24

// Config holds pipeline configuration
type Config struct {
	AspectRatio aspect.Ratio
	// MaxBufferBytes refuses sources whose output would not fit; zero = unlimited
	MaxBufferBytes uint64
	// OnProgress is called after every frame and once more on completion
	OnProgress func(Progress)
	// OnFrame sees each output frame right after it is produced. The frame
	// stays owned by the session and must not be retained.
	OnFrame func(frame.Frame, Progress)
}

// Deps are the external capabilities the pipeline drives
type Deps struct {
	Opener   SourceOpener
	Detector LandmarkDetector
	Exporter Exporter
}

// Pipeline orchestrates reframing runs. One run executes at a time;
// Progress may be polled concurrently.
type Pipeline struct {
	config   Config
	opener   SourceOpener
	detector LandmarkDetector
	exporter Exporter

	ratio   atomic.Float64
	current atomic.Pointer[Session]

	mu   sync.Mutex
	last *Session
}

// New creates a new reframe pipeline
func New(config Config, deps Deps) (*Pipeline, error) {
	if deps.Opener == nil {
		return nil, fmt.Errorf("a source opener is required")
	}
	if config.AspectRatio == 0 {
		config.AspectRatio = aspect.Default
	}
	if !config.AspectRatio.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRatio, float64(config.AspectRatio))
	}

	p := &Pipeline{
		config:   config,
		opener:   deps.Opener,
		detector: deps.Detector,
		exporter: deps.Exporter,
	}
	p.ratio.Store(config.AspectRatio.Float64())
	return p, nil
}

// SetAspectRatio changes the ratio used by the next run. A run in progress
// keeps the ratio it started with.
func (p *Pipeline) SetAspectRatio(r aspect.Ratio) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidRatio, float64(r))
	}
	p.ratio.Store(r.Float64())
	return nil
}

// AspectRatio returns the ratio the next run will use
func (p *Pipeline) AspectRatio() aspect.Ratio {
	return aspect.Ratio(p.ratio.Load())
}

// Progress returns the progress of the current or most recent run
func (p *Pipeline) Progress() (Progress, bool) {
	s := p.current.Load()
	if s == nil {
		return Progress{}, false
	}
	return s.Progress(), true
}

// LastSession returns the last completed session, if any
func (p *Pipeline) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run processes the video at path from the first frame to the last.
//
// Selecting a new source discards the previous run's frames once the new
// source has been opened. If the source cannot be opened, nothing changes.
// If reading fails mid-stream or ctx is cancelled between frames, the partial
// run is discarded and nothing is left to export.
func (p *Pipeline) Run(ctx context.Context, path string) (_ *Session, _err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ratio := aspect.Ratio(p.ratio.Load())

	src, err := p.opener.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceOpen, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warnf(ctx, "failed to close source %s: %v", path, err)
		}
	}()

	srcDims, err := probe(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceOpen, path, err)
	}

	outDims := geometry.OutputDimensions(srcDims, ratio.Float64())
	if !outDims.Valid() {
		return nil, fmt.Errorf("%w: %v gives %s output for %s source", ErrInvalidRatio, ratio, outDims, srcDims)
	}

	total := max(src.FrameCount(), 0)
	estimate := uint64(total) * uint64(outDims.Width) * uint64(outDims.Height) * 3
	if p.config.MaxBufferBytes > 0 && estimate > p.config.MaxBufferBytes {
		return nil, fmt.Errorf("%w: %d frames of %s need %s, limit is %s", ErrBufferLimit,
			total, outDims, humanize.Bytes(estimate), humanize.Bytes(p.config.MaxBufferBytes))
	}

	p.discardLast(ctx)

	sess, err := newSession(path, srcDims, outDims, ratio, total)
	if err != nil {
		return nil, err
	}
	p.current.Store(sess)

	ctx = belt.WithField(ctx, "session_id", sess.ID)
	logger.Infof(ctx, "reframing %s: %s -> %s (%v), %d frames, ~%s in memory",
		path, srcDims, outDims, ratio, total, humanize.Bytes(estimate))

	defer func() {
		if _err != nil {
			if err := sess.abort(); err != nil {
				logger.Warnf(ctx, "failed to release aborted session: %v", err)
			}
			p.report(sess.Progress())
		}
	}()

	p.report(sess.Progress())

	buf := gocv.NewMat()
	defer buf.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled after %d frames: %w", sess.Len(), err)
		}

		err := src.Read(&buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s at frame %d: %w", ErrSourceRead, path, sess.Len(), err)
		}

		f, err := sess.processFrame(ctx, p.detector, buf)
		if err != nil {
			return nil, err
		}

		progress := sess.Progress()
		p.report(progress)
		if p.config.OnFrame != nil {
			p.config.OnFrame(f, progress)
		}
	}

	if sess.Len() == 0 {
		return nil, fmt.Errorf("%w: %s: no frames after rewind", ErrSourceRead, path)
	}

	sess.complete()
	p.last = sess
	p.report(sess.Progress())

	logger.Infof(ctx, "reframed %d frames in %v (%s)",
		sess.Len(), time.Since(sess.StartedAt).Round(time.Millisecond), humanize.Bytes(sess.Frames().SizeBytes()))
	return sess, nil
}

// probe reads the first frame to learn the real frame size, then rewinds
func probe(src Source) (geometry.Dimensions, error) {
	first := gocv.NewMat()
	defer first.Close()

	if err := src.Read(&first); err != nil {
		if errors.Is(err, io.EOF) {
			return geometry.Dimensions{}, fmt.Errorf("no frames")
		}
		return geometry.Dimensions{}, fmt.Errorf("cannot read first frame: %w", err)
	}
	dims := geometry.Dimensions{Width: first.Cols(), Height: first.Rows()}
	if !dims.Valid() {
		return geometry.Dimensions{}, fmt.Errorf("empty first frame")
	}

	if err := src.Seek(0); err != nil {
		return geometry.Dimensions{}, fmt.Errorf("cannot rewind: %w", err)
	}
	return dims, nil
}

// Export encodes the last completed run to path. On failure the frames are
// kept so the export can be retried with another destination.
func (p *Pipeline) Export(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sess := p.last
	if sess == nil || sess.State() != StateComplete || sess.Len() == 0 {
		return ErrNoSession
	}
	if p.exporter == nil {
		return fmt.Errorf("%w: no exporter configured", ErrExport)
	}

	ctx = belt.WithField(ctx, "session_id", sess.ID)
	start := time.Now()
	if err := p.exporter.WriteVideo(ctx, path, sess.Frames(), ExportFrameRate); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}

	logger.Infof(ctx, "exported %d frames (%s) to %s in %v",
		sess.Len(), sess.Output, path, time.Since(start).Round(time.Millisecond))
	return nil
}

func (p *Pipeline) report(progress Progress) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(progress)
	}
}

func (p *Pipeline) discardLast(ctx context.Context) {
	if p.last == nil {
		return
	}
	if err := p.last.Close(); err != nil {
		logger.Warnf(ctx, "failed to release previous session %s: %v", p.last.ID, err)
	}
	p.last = nil
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	if p.last != nil {
		if err := p.last.Close(); err != nil {
			errs = append(errs, err)
		}
		p.last = nil
	}
	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %w", errors.Join(errs...))
	}
	return nil
}
