package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"

	"github.com/dudu/reframe/internal/aspect"
	"github.com/dudu/reframe/internal/config"
	"github.com/dudu/reframe/internal/detector"
	"github.com/dudu/reframe/internal/exporter"
	"github.com/dudu/reframe/internal/frame"
	"github.com/dudu/reframe/internal/inference"
	"github.com/dudu/reframe/internal/pipeline"
	"github.com/dudu/reframe/internal/source"
	"github.com/dudu/reframe/internal/ui"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

// swapped in tests
var (
	initRuntime     = inference.Initialize
	shutdownRuntime = inference.Shutdown
	newPoseDetector = detector.NewPoseDetector
)

type flags struct {
	ConfigPath string
	Ratio      aspect.Ratio
	Outputs    []string
	Model      string
	Detector   string
	Exporter   string
	Preview    bool
	MaxBuffer  string
	LogLevel   logger.Level
}

func main() {
	f, input := parseFlags()

	l := logrus.Default().WithLevel(f.LogLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, f, input)
	stop()
	belt.Flush(ctx)

	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (flags, string) {
	f := flags{
		Ratio:    aspect.Default,
		LogLevel: logger.LevelWarning,
	}

	pflag.StringVarP(&f.ConfigPath, "config", "c", "", "YAML config file")
	pflag.VarP(&f.Ratio, "ratio", "r", "Target aspect ratio: 16:9, 9:16, 1:1 or a float")
	pflag.StringArrayVarP(&f.Outputs, "output", "o", nil,
		"Output video path (default <input>_reframed.mp4); repeat to give fallbacks tried in order if an export fails")
	pflag.StringVarP(&f.Model, "model", "m", "", "Pose model path")
	pflag.StringVar(&f.Detector, "detector", "", "Landmark detector: onnx or none")
	pflag.StringVar(&f.Exporter, "exporter", "", "Video exporter: ffmpeg or opencv")
	pflag.BoolVar(&f.Preview, "preview", false, "Show preview window")
	pflag.StringVar(&f.MaxBuffer, "max-buffer", "", "Refuse sources whose output exceeds this size, e.g. 4GB")
	pflag.Var(&f.LogLevel, "log-level", "Log level")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "reframe - Subject-following aspect ratio conversion for videos\n\n")
		fmt.Fprintf(os.Stderr, "Usage: reframe [options] <input-video>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  reframe talk.mp4\n")
		fmt.Fprintf(os.Stderr, "  reframe --ratio 1:1 --model models/movenet_lightning.onnx talk.mp4\n")
		fmt.Fprintf(os.Stderr, "  reframe --detector none --exporter opencv -o out.mp4 talk.mp4\n")
	}

	pflag.Parse()
	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one input video is required")
		pflag.Usage()
		os.Exit(1)
	}
	return f, pflag.Arg(0)
}

// loadConfig reads the config file (or defaults) and applies flags that were
// set explicitly on the command line
func loadConfig(f flags, changed func(name string) bool) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigPath != "" {
		loaded, err := config.Load(f.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if changed("ratio") {
		cfg.AspectRatio = f.Ratio
	}
	if changed("model") {
		cfg.Detector.ModelPath = f.Model
		if f.Model == "" {
			cfg.Detector.Backend = config.DetectorNone
		}
	}
	if changed("detector") {
		cfg.Detector.Backend = f.Detector
	}
	if changed("exporter") {
		cfg.Export.Backend = f.Exporter
	}
	if changed("preview") {
		cfg.Preview = f.Preview
	}
	if changed("max-buffer") {
		cfg.MaxBuffer = f.MaxBuffer
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func defaultOutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_reframed.mp4"
}

func run(ctx context.Context, f flags, input string) error {
	fmt.Println("reframe starting...")

	cfg, err := loadConfig(f, pflag.CommandLine.Changed)
	if err != nil {
		return err
	}
	maxBuffer, err := cfg.MaxBufferBytes()
	if err != nil {
		return err
	}

	outputs := f.Outputs
	if len(outputs) == 0 {
		outputs = []string{defaultOutputPath(input)}
	}

	det, err := newDetector(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownRuntime()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var window *ui.Window
	if cfg.Preview {
		window = ui.NewWindow("reframe")
		defer window.Close()
	}

	p, err := pipeline.New(pipeline.Config{
		AspectRatio:    cfg.AspectRatio,
		MaxBufferBytes: maxBuffer,
		OnProgress: func(progress pipeline.Progress) {
			fmt.Printf("\r%s  ", ui.ProgressText(progress))
		},
		OnFrame: func(fr frame.Frame, progress pipeline.Progress) {
			if window == nil {
				return
			}
			window.Show(fr.Mat, progress)
			if window.QuitRequested() {
				fmt.Println("\nQuitting...")
				cancel()
			}
		},
	}, pipeline.Deps{
		Opener:   pipeline.OpenerFunc(openSource),
		Detector: det,
		Exporter: newExporter(cfg),
	})
	if err != nil {
		det.Close()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	fmt.Printf("Processing %s (ratio %v)...\n", input, p.AspectRatio())
	sess, err := p.Run(ctx, input)
	fmt.Println()
	switch {
	case errors.Is(err, pipeline.ErrSourceOpen):
		return fmt.Errorf("could not open video: %w", err)
	case errors.Is(err, context.Canceled):
		fmt.Println("Processing stopped, nothing to export")
		return nil
	case err != nil:
		return fmt.Errorf("processing failed: %w", err)
	}

	timing := sess.LastTiming()
	fmt.Printf("Processed %d frames at %s (last frame D:%.0fms T:%.0fms S:%.0fms)\n",
		sess.Len(), sess.Output,
		float64(timing.Detection.Milliseconds()),
		float64(timing.Transform.Milliseconds()),
		float64(timing.Stabilize.Milliseconds()))

	saved, err := exportFirst(ctx, p, outputs)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", saved)
	return nil
}

type videoExporter interface {
	Export(ctx context.Context, path string) error
}

// exportFirst tries each destination in order until one export succeeds.
// The processed frames stay in memory between attempts.
func exportFirst(ctx context.Context, p videoExporter, outputs []string) (string, error) {
	var errs []error
	for i, output := range outputs {
		fmt.Printf("Exporting to %s...\n", output)
		err := p.Export(ctx, output)
		if err == nil {
			return output, nil
		}
		if errors.Is(err, pipeline.ErrNoSession) {
			return "", errors.New("no processed video to export")
		}
		errs = append(errs, err)
		if i+1 < len(outputs) {
			fmt.Printf("Export failed: %v\nRetrying with %s\n", err, outputs[i+1])
		}
	}
	if len(outputs) == 1 {
		return "", fmt.Errorf("%w (pass another -o to retry elsewhere; the video has to be processed again)", errs[0])
	}
	return "", fmt.Errorf("every output failed: %w", errors.Join(errs...))
}

func openSource(ctx context.Context, path string) (pipeline.Source, error) {
	v, err := source.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func newDetector(ctx context.Context, cfg *config.Config) (pipeline.LandmarkDetector, error) {
	if cfg.Detector.Backend == config.DetectorNone {
		logger.Infof(ctx, "no landmark detector, every frame gets the centered crop")
		return detector.None{}, nil
	}

	if err := initRuntime(ctx, cfg.Detector.ONNXRuntimeLibrary); err != nil {
		return nil, err
	}

	fmt.Printf("Loading pose model %s...\n", cfg.Detector.ModelPath)
	det, err := newPoseDetector(ctx, detector.PoseConfig{
		ModelPath:    cfg.Detector.ModelPath,
		InputName:    cfg.Detector.InputName,
		OutputName:   cfg.Detector.OutputName,
		InputSize:    cfg.Detector.InputSize,
		NumKeypoints: cfg.Detector.NumKeypoints,
		FloatInput:   cfg.Detector.FloatInput,
		MinScore:     float32(cfg.Detector.MinScore),
		CoreML:       cfg.Detector.CoreML,
	})
	if err != nil {
		if shutdownErr := shutdownRuntime(); shutdownErr != nil {
			logger.Warnf(ctx, "failed to shut down ONNX Runtime: %v", shutdownErr)
		}
		return nil, fmt.Errorf("failed to load pose model: %w", err)
	}
	return det, nil
}

func newExporter(cfg *config.Config) pipeline.Exporter {
	if cfg.Export.Backend == config.ExporterOpenCV {
		return exporter.NewOpenCV(cfg.Export.FourCC)
	}
	return exporter.NewFFmpeg(cfg.Export.FFmpegPath, cfg.CodecParams())
}
