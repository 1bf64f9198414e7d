package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dudu/reframe/internal/aspect"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reframe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, aspect.Portrait9x16, cfg.AspectRatio)
	require.Equal(t, "libx264", cfg.Export.Codec)
	require.Equal(t, "slow", cfg.Export.Preset)
	require.Equal(t, 18, cfg.Export.CRF)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
aspect_ratio: "1:1"
detector:
  backend: none
export:
  crf: 23
  extra_args: ["-movflags", "+faststart"]
max_buffer: 2GB
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, aspect.Square1x1, cfg.AspectRatio)
	require.Equal(t, DetectorNone, cfg.Detector.Backend)
	require.Equal(t, 23, cfg.Export.CRF)
	require.Equal(t, "slow", cfg.Export.Preset)

	limit, err := cfg.MaxBufferBytes()
	require.NoError(t, err)
	require.EqualValues(t, 2_000_000_000, limit)

	params := cfg.CodecParams()
	require.Equal(t, []string{"-movflags", "+faststart"}, params.ExtraArgs)
	require.NotNil(t, params.CRF)
	require.Equal(t, 23, *params.CRF)
}

func TestLoadDecimalRatio(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "aspect_ratio: 0.8\n"))
	require.NoError(t, err)
	require.InDelta(t, 0.8, cfg.AspectRatio.Float64(), 1e-12)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "bad ratio", body: `aspect_ratio: "9:0"`},
		{name: "unknown detector", body: "detector:\n  backend: mediapipe\n"},
		{name: "missing model", body: "detector:\n  model_path: \"\"\n"},
		{name: "unknown exporter", body: "export:\n  backend: gif\n"},
		{name: "crf out of range", body: "export:\n  crf: 99\n"},
		{name: "bad fourcc", body: "export:\n  backend: opencv\n  fourcc: h264x\n"},
		{name: "bad buffer", body: "max_buffer: lots\n"},
		{name: "not yaml", body: "{{{"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLosslessCRFReachesEncoder(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "export:\n  crf: 0\n"))
	require.NoError(t, err)

	params := cfg.CodecParams()
	require.NotNil(t, params.CRF)
	require.Zero(t, *params.CRF)
}
