// Package exporter encodes a frame sequence into a video file.
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/dudu/reframe/internal/frame"
	"github.com/dudu/reframe/internal/geometry"
)

// CodecParams are handed to the encoder untouched
type CodecParams struct {
	Codec       string
	Preset      string
	CRF         *int // nil omits -crf; 0 is lossless for x264
	PixelFormat string
	ExtraArgs   []string
}

// DefaultCodecParams encodes H.264 at high quality
func DefaultCodecParams() CodecParams {
	crf := 18
	return CodecParams{
		Codec:       "libx264",
		Preset:      "slow",
		CRF:         &crf,
		PixelFormat: "yuv420p",
	}
}

// FFmpeg pipes raw BGR frames into an ffmpeg process
type FFmpeg struct {
	Binary string
	Params CodecParams
}

// NewFFmpeg creates an ffmpeg exporter. An empty binary means "ffmpeg" from PATH.
func NewFFmpeg(binary string, params CodecParams) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		Binary: binary,
		Params: params,
	}
}

// Args builds the ffmpeg command line (without the binary)
func (e *FFmpeg) Args(path string, dims geometry.Dimensions, frameRate int) []string {
	args := []string{
		"-y", // overwrite output
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", dims.String(),
		"-r", strconv.Itoa(frameRate),
		"-i", "-",
		"-an",
	}
	if e.Params.Codec != "" {
		args = append(args, "-c:v", e.Params.Codec)
	}
	if e.Params.Preset != "" {
		args = append(args, "-preset", e.Params.Preset)
	}
	if e.Params.CRF != nil {
		args = append(args, "-crf", strconv.Itoa(*e.Params.CRF))
	}
	if e.Params.PixelFormat != "" {
		args = append(args, "-pix_fmt", e.Params.PixelFormat)
	}
	args = append(args, e.Params.ExtraArgs...)
	return append(args, path)
}

// WriteVideo encodes frames to path. A failed export removes the partial file.
func (e *FFmpeg) WriteVideo(ctx context.Context, path string, frames frame.Sequence, frameRate int) (_err error) {
	dims, err := checkFrames(frames)
	if err != nil {
		return err
	}
	if err := checkDestination(path); err != nil {
		return err
	}

	args := e.Args(path, dims, frameRate)
	logger.Debugf(ctx, "running %s %s", e.Binary, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.Binary, err)
	}
	defer func() {
		if _err != nil {
			os.Remove(path)
		}
	}()

	writeErr := writeFrames(stdin, frames)
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", waitErr, msg)
		}
		return fmt.Errorf("ffmpeg failed: %w", waitErr)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to stream frames to ffmpeg: %w", writeErr)
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return fmt.Errorf("failed to close ffmpeg stdin: %w", closeErr)
	}

	logger.Debugf(ctx, "wrote %d frames to %s", len(frames), path)
	return nil
}

func writeFrames(w io.Writer, frames frame.Sequence) error {
	for i := range frames {
		if _, err := w.Write(frames[i].Mat.ToBytes()); err != nil {
			return fmt.Errorf("frame %d: %w", frames[i].Index, err)
		}
	}
	return nil
}

// checkFrames makes sure the sequence is non-empty, 3-channel and uniformly sized
func checkFrames(frames frame.Sequence) (geometry.Dimensions, error) {
	if len(frames) == 0 {
		return geometry.Dimensions{}, fmt.Errorf("no frames to export")
	}

	dims := geometry.Dimensions{Width: frames[0].Mat.Cols(), Height: frames[0].Mat.Rows()}
	if !dims.Valid() {
		return geometry.Dimensions{}, fmt.Errorf("frame %d is empty", frames[0].Index)
	}
	for i := range frames {
		m := frames[i].Mat
		if m.Cols() != dims.Width || m.Rows() != dims.Height {
			return geometry.Dimensions{}, fmt.Errorf("frame %d is %dx%d, expected %s",
				frames[i].Index, m.Cols(), m.Rows(), dims)
		}
		if m.Channels() != 3 {
			return geometry.Dimensions{}, fmt.Errorf("frame %d has %d channels, expected 3",
				frames[i].Index, m.Channels())
		}
	}
	return dims, nil
}

func checkDestination(path string) error {
	if path == "" {
		return fmt.Errorf("empty output path")
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}
	return nil
}
