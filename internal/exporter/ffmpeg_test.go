package exporter

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/frame"
	"github.com/dudu/reframe/internal/geometry"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg.
// The script copies stdin into the last argument, like a raw passthrough encoder.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testSequence(n, width, height int) frame.Sequence {
	seq := make(frame.Sequence, n)
	for i := range seq {
		m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		m.SetTo(gocv.NewScalar(float64(i), 0, 0, 0))
		seq[i] = frame.Frame{Index: i, Mat: m}
	}
	return seq
}

func TestFFmpegArgs(t *testing.T) {
	t.Parallel()

	e := NewFFmpeg("", DefaultCodecParams())
	require.Equal(t, "ffmpeg", e.Binary)

	args := e.Args("out.mp4", geometry.Dimensions{Width: 608, Height: 1080}, 24)
	require.Equal(t, []string{
		"-y", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "bgr24", "-s", "608x1080", "-r", "24", "-i", "-",
		"-an",
		"-c:v", "libx264", "-preset", "slow", "-crf", "18", "-pix_fmt", "yuv420p",
		"out.mp4",
	}, args)
}

func TestFFmpegArgsLosslessCRF(t *testing.T) {
	t.Parallel()

	params := DefaultCodecParams()
	lossless := 0
	params.CRF = &lossless

	args := NewFFmpeg("", params).Args("out.mp4", geometry.Dimensions{Width: 2, Height: 2}, 24)
	require.Subset(t, args, []string{"-crf", "0"})
	require.Equal(t, "0", args[indexOf(args, "-crf")+1])
}

func TestFFmpegArgsOmitsUnsetCRF(t *testing.T) {
	t.Parallel()

	args := NewFFmpeg("", CodecParams{Codec: "libx264"}).Args("out.mp4", geometry.Dimensions{Width: 2, Height: 2}, 24)
	require.NotContains(t, args, "-crf")
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}

func TestFFmpegArgsPassThroughExtra(t *testing.T) {
	t.Parallel()

	e := NewFFmpeg("/usr/bin/ffmpeg", CodecParams{Codec: "libx265", ExtraArgs: []string{"-tag:v", "hvc1"}})
	args := e.Args("o.mp4", geometry.Dimensions{Width: 2, Height: 2}, 24)
	require.Equal(t, []string{"-c:v", "libx265", "-tag:v", "hvc1", "o.mp4"}, args[len(args)-5:])
}

func TestFFmpegWriteVideoStreamsAllFrames(t *testing.T) {
	bin := fakeFFmpeg(t, `for last; do :; done; cat > "$last"`)

	frames := testSequence(5, 8, 6)
	defer frames.Close()

	out := filepath.Join(t.TempDir(), "out.mp4")
	e := NewFFmpeg(bin, DefaultCodecParams())
	require.NoError(t, e.WriteVideo(context.Background(), out, frames, 24))

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.EqualValues(t, 5*8*6*3, info.Size())
}

func TestFFmpegWriteVideoFailureRemovesOutput(t *testing.T) {
	bin := fakeFFmpeg(t, `for last; do :; done; echo partial > "$last"; echo "Unknown encoder" >&2; exit 1`)

	frames := testSequence(2, 4, 4)
	defer frames.Close()

	out := filepath.Join(t.TempDir(), "out.mp4")
	err := NewFFmpeg(bin, DefaultCodecParams()).WriteVideo(context.Background(), out, frames, 24)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unknown encoder")

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func TestFFmpegWriteVideoRejectsBadInput(t *testing.T) {
	e := NewFFmpeg("ffmpeg", DefaultCodecParams())
	ctx := context.Background()

	err := e.WriteVideo(ctx, filepath.Join(t.TempDir(), "a.mp4"), nil, 24)
	require.Error(t, err)

	frames := testSequence(1, 4, 4)
	defer frames.Close()
	err = e.WriteVideo(ctx, filepath.Join(t.TempDir(), "missing", "a.mp4"), frames, 24)
	require.Error(t, err)

	mixed := append(testSequence(1, 4, 4), testSequence(1, 6, 4)...)
	defer mixed.Close()
	_, err = checkFrames(mixed)
	require.Error(t, err)
}
