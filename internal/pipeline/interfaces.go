package pipeline

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/frame"
	"github.com/dudu/reframe/internal/geometry"
)

// Source is an open video being read in frame order
type Source interface {
	Width() int
	Height() int
	// FrameCount may be an estimate; zero means unknown
	FrameCount() int
	// Read decodes the next frame into dst and returns io.EOF after the last one
	Read(dst *gocv.Mat) error
	Seek(frameIndex int) error
	Close() error
}

// SourceOpener opens a video by path
type SourceOpener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// OpenerFunc adapts a function to SourceOpener
type OpenerFunc func(ctx context.Context, path string) (Source, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, path string) (Source, error) {
	return f(ctx, path)
}

// LandmarkDetector finds the subject in a frame. A nil or empty result means
// no subject; that is not an error.
type LandmarkDetector interface {
	Detect(ctx context.Context, img gocv.Mat) (geometry.LandmarkSet, error)
	Close() error
}

// Exporter encodes a finished frame sequence
type Exporter interface {
	WriteVideo(ctx context.Context, path string, frames frame.Sequence, frameRate int) error
}
