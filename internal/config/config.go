package config

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/dudu/reframe/internal/aspect"
	"github.com/dudu/reframe/internal/exporter"
)

// Detector backends
const (
	DetectorONNX = "onnx"
	DetectorNone = "none"
)

// Exporter backends
const (
	ExporterFFmpeg = "ffmpeg"
	ExporterOpenCV = "opencv"
)

// Config represents the complete reframe configuration
type Config struct {
	AspectRatio aspect.Ratio   `yaml:"aspect_ratio"`
	Detector    DetectorConfig `yaml:"detector"`
	Export      ExportConfig   `yaml:"export"`
	MaxBuffer   string         `yaml:"max_buffer"` // e.g. "8GB"; empty = unlimited
	Preview     bool           `yaml:"preview"`
}

// DetectorConfig contains pose model settings
type DetectorConfig struct {
	Backend            string  `yaml:"backend"` // onnx, none
	ModelPath          string  `yaml:"model_path"`
	InputName          string  `yaml:"input_name"`
	OutputName         string  `yaml:"output_name"`
	InputSize          int     `yaml:"input_size"`
	NumKeypoints       int     `yaml:"num_keypoints"`
	FloatInput         bool    `yaml:"float_input"`
	MinScore           float64 `yaml:"min_score"`
	ONNXRuntimeLibrary string  `yaml:"onnxruntime_library"`
	CoreML             bool    `yaml:"coreml"`
}

// ExportConfig contains encoder settings
type ExportConfig struct {
	Backend     string   `yaml:"backend"` // ffmpeg, opencv
	FFmpegPath  string   `yaml:"ffmpeg_path"`
	Codec       string   `yaml:"codec"`
	Preset      string   `yaml:"preset"`
	CRF         int      `yaml:"crf"`
	PixelFormat string   `yaml:"pixel_format"`
	ExtraArgs   []string `yaml:"extra_args"`
	FourCC      string   `yaml:"fourcc"`
}

// Default returns the built-in configuration
func Default() Config {
	codec := exporter.DefaultCodecParams()
	return Config{
		AspectRatio: aspect.Default,
		Detector: DetectorConfig{
			Backend:      DetectorONNX,
			ModelPath:    "models/movenet_lightning.onnx",
			InputName:    "input",
			OutputName:   "output_0",
			InputSize:    192,
			NumKeypoints: 17,
			MinScore:     0.3,
		},
		Export: ExportConfig{
			Backend:     ExporterFFmpeg,
			FFmpegPath:  "ffmpeg",
			Codec:       codec.Codec,
			Preset:      codec.Preset,
			CRF:         *codec.CRF,
			PixelFormat: codec.PixelFormat,
			FourCC:      exporter.DefaultFourCC,
		},
	}
}

// Load reads a YAML file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if !c.AspectRatio.Valid() {
		return fmt.Errorf("aspect_ratio: %w: %v", aspect.ErrInvalid, float64(c.AspectRatio))
	}

	switch c.Detector.Backend {
	case DetectorNone:
	case DetectorONNX:
		if c.Detector.ModelPath == "" {
			return fmt.Errorf("detector.model_path is required for the %s backend", DetectorONNX)
		}
		if c.Detector.InputSize <= 0 {
			return fmt.Errorf("detector.input_size must be positive, got %d", c.Detector.InputSize)
		}
		if c.Detector.NumKeypoints <= 0 {
			return fmt.Errorf("detector.num_keypoints must be positive, got %d", c.Detector.NumKeypoints)
		}
		if c.Detector.MinScore < 0 || c.Detector.MinScore > 1 {
			return fmt.Errorf("detector.min_score must be in [0, 1], got %v", c.Detector.MinScore)
		}
	default:
		return fmt.Errorf("detector.backend must be %s or %s, got %q", DetectorONNX, DetectorNone, c.Detector.Backend)
	}

	switch c.Export.Backend {
	case ExporterFFmpeg, ExporterOpenCV:
	default:
		return fmt.Errorf("export.backend must be %s or %s, got %q", ExporterFFmpeg, ExporterOpenCV, c.Export.Backend)
	}
	if c.Export.CRF < 0 || c.Export.CRF > 51 {
		return fmt.Errorf("export.crf must be in [0, 51], got %d", c.Export.CRF)
	}
	if c.Export.Backend == ExporterOpenCV && len(c.Export.FourCC) != 4 {
		return fmt.Errorf("export.fourcc must be 4 characters, got %q", c.Export.FourCC)
	}

	if _, err := c.MaxBufferBytes(); err != nil {
		return err
	}

	return nil
}

// MaxBufferBytes parses MaxBuffer; zero means unlimited
func (c *Config) MaxBufferBytes() (uint64, error) {
	if c.MaxBuffer == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxBuffer)
	if err != nil {
		return 0, fmt.Errorf("max_buffer: %w", err)
	}
	return n, nil
}

// CodecParams converts the export section for the ffmpeg exporter
func (c *Config) CodecParams() exporter.CodecParams {
	crf := c.Export.CRF
	return exporter.CodecParams{
		Codec:       c.Export.Codec,
		Preset:      c.Export.Preset,
		CRF:         &crf,
		PixelFormat: c.Export.PixelFormat,
		ExtraArgs:   c.Export.ExtraArgs,
	}
}
