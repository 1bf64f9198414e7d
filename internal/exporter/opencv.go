package exporter

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/frame"
)

// DefaultFourCC is understood by most OpenCV builds for .mp4 output
const DefaultFourCC = "mp4v"

// OpenCV writes frames with OpenCV's VideoWriter. It does not take codec
// tuning parameters beyond the FourCC.
type OpenCV struct {
	FourCC string
}

// NewOpenCV creates a VideoWriter based exporter
func NewOpenCV(fourcc string) *OpenCV {
	if fourcc == "" {
		fourcc = DefaultFourCC
	}
	return &OpenCV{FourCC: fourcc}
}

// WriteVideo encodes frames to path. A failed export removes the partial file.
func (e *OpenCV) WriteVideo(ctx context.Context, path string, frames frame.Sequence, frameRate int) (_err error) {
	dims, err := checkFrames(frames)
	if err != nil {
		return err
	}
	if err := checkDestination(path); err != nil {
		return err
	}

	writer, err := gocv.VideoWriterFile(path, e.FourCC, float64(frameRate), dims.Width, dims.Height, true)
	if err != nil {
		return fmt.Errorf("failed to open video writer for %s: %w", path, err)
	}
	defer func() {
		if _err != nil {
			os.Remove(path)
		}
	}()
	if !writer.IsOpened() {
		writer.Close()
		return fmt.Errorf("video writer for %s (%s) did not open", path, e.FourCC)
	}

	for i := range frames {
		if err := writer.Write(frames[i].Mat); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write frame %d: %w", frames[i].Index, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}

	logger.Debugf(ctx, "wrote %d frames to %s (%s)", len(frames), path, e.FourCC)
	return nil
}
