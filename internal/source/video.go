// Package source reads frames from a video file with OpenCV.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"gocv.io/x/gocv"
)

var (
	// ErrOpen is returned when the file is missing, unreadable or not a video
	ErrOpen = errors.New("cannot open video")

	// ErrRead is returned when decoding fails in the middle of the stream
	ErrRead = errors.New("cannot read video frame")
)

// Video is a sequential frame reader over a video file
type Video struct {
	capture    *gocv.VideoCapture
	path       string
	width      int
	height     int
	frameCount int
	fps        float64
	position   int
	mu         sync.Mutex
}

// Open opens a video file for reading
func Open(ctx context.Context, path string) (*Video, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w %s: unsupported container or codec", ErrOpen, path)
	}

	v := &Video{
		capture:    capture,
		path:       path,
		width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		frameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		fps:        capture.Get(gocv.VideoCaptureFPS),
	}
	if v.width <= 0 || v.height <= 0 {
		capture.Close()
		return nil, fmt.Errorf("%w %s: no video stream", ErrOpen, path)
	}

	logger.Debugf(ctx, "opened %s: %dx%d, %d frames @ %.2f fps", path, v.width, v.height, v.frameCount, v.fps)
	return v, nil
}

// Read decodes the next frame into dst. It returns io.EOF after the last frame.
func (v *Video) Read(dst *gocv.Mat) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return fmt.Errorf("%w: %s is closed", ErrRead, v.path)
	}

	if !v.capture.Read(dst) {
		return io.EOF
	}
	if dst.Empty() {
		return fmt.Errorf("%w: %s: empty frame at %d", ErrRead, v.path, v.position)
	}

	v.position++
	return nil
}

// Position returns the index of the next frame to be read
func (v *Video) Position() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// Seek moves the read position to the given frame index
func (v *Video) Seek(frameIndex int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return fmt.Errorf("%w: %s is closed", ErrRead, v.path)
	}
	if frameIndex < 0 {
		return fmt.Errorf("invalid frame index %d", frameIndex)
	}

	v.capture.Set(gocv.VideoCapturePosFrames, float64(frameIndex))
	v.position = frameIndex
	return nil
}

// Width returns frame width
func (v *Video) Width() int {
	return v.width
}

// Height returns frame height
func (v *Video) Height() int {
	return v.height
}

// FrameCount returns the frame count reported by the container (may be an estimate)
func (v *Video) FrameCount() int {
	return v.frameCount
}

// FPS returns the source frame rate
func (v *Video) FPS() float64 {
	return v.fps
}

// Path returns the file being read
func (v *Video) Path() string {
	return v.path
}

// Close releases the decoder
func (v *Video) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture != nil {
		err := v.capture.Close()
		v.capture = nil
		return err
	}
	return nil
}
