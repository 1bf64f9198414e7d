package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	ort "github.com/yalue/onnxruntime_go"
)

// DefaultLibraryPath is where the ONNX Runtime shared library is looked up
// when nothing else is configured
const DefaultLibraryPath = "lib/libonnxruntime.dylib"

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize sets up ONNX Runtime environment (call once at startup).
// An empty libraryPath falls back to DefaultLibraryPath.
func Initialize(ctx context.Context, libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = DefaultLibraryPath
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", libraryPath, err)
	}

	logger.Debugf(ctx, "ONNX Runtime %s initialized", ort.GetVersion())
	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Options tunes how a session is created
type Options struct {
	// CoreML enables the CoreML execution provider, falling back to CPU
	// when it is not available
	CoreML bool
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a new inference session from an ONNX model
func NewSession(ctx context.Context, modelPath string, inputNames, outputNames []string, opts Options) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if opts.CoreML {
		// Flag 0 = default settings, use Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.Warnf(ctx, "[CPU] %s - CoreML failed: %v", modelPath, err)
		} else {
			logger.Debugf(ctx, "[CoreML] %s", modelPath)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// ModelPath returns the model file backing the session
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// IOInfo describes one model input or output
type IOInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// Inspect lists a model's inputs and outputs without creating a session
func Inspect(modelPath string) (inputs, outputs []IOInfo, err error) {
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model info from %s: %w", modelPath, err)
	}
	for _, info := range in {
		inputs = append(inputs, IOInfo{Name: info.Name, Dimensions: info.Dimensions, DataType: fmt.Sprintf("%v", info.DataType)})
	}
	for _, info := range out {
		outputs = append(outputs, IOInfo{Name: info.Name, Dimensions: info.Dimensions, DataType: fmt.Sprintf("%v", info.DataType)})
	}
	return inputs, outputs, nil
}
