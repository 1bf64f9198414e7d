package detector

import (
	"context"
	"fmt"
	"image"

	"github.com/facebookincubator/go-belt/tool/logger"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/geometry"
	"github.com/dudu/reframe/internal/inference"
)

// PoseConfig describes a single-person pose model with one image input and
// one [1, 1, K, 3] output of (y, x, score) rows in normalized coordinates
type PoseConfig struct {
	ModelPath    string
	InputName    string
	OutputName   string
	InputSize    int
	NumKeypoints int
	// FloatInput feeds float32 pixels in [0,255] instead of int32
	FloatInput bool
	// MinScore is the mean keypoint confidence below which the frame is
	// treated as having no subject
	MinScore float32
	CoreML   bool
}

// DefaultPoseConfig matches MoveNet SinglePose Lightning exported to ONNX
func DefaultPoseConfig(modelPath string) PoseConfig {
	return PoseConfig{
		ModelPath:    modelPath,
		InputName:    "input",
		OutputName:   "output_0",
		InputSize:    192,
		NumKeypoints: NumKeypoints,
		MinScore:     0.3,
	}
}

// PoseDetector estimates body keypoints with an ONNX pose model
type PoseDetector struct {
	session *inference.Session
	config  PoseConfig
}

// NewPoseDetector creates a pose landmark detector.
// inference.Initialize must have been called.
func NewPoseDetector(ctx context.Context, config PoseConfig) (*PoseDetector, error) {
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("invalid pose input size %d", config.InputSize)
	}
	if config.NumKeypoints <= 0 {
		return nil, fmt.Errorf("invalid keypoint count %d", config.NumKeypoints)
	}

	session, err := inference.NewSession(ctx,
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		inference.Options{CoreML: config.CoreML},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pose session: %w", err)
	}

	return &PoseDetector{
		session: session,
		config:  config,
	}, nil
}

// Detect returns the subject's landmarks, or nil when no subject is found.
// img must already be in the channel order the model expects (RGB).
func (d *PoseDetector) Detect(ctx context.Context, img gocv.Mat) (geometry.LandmarkSet, error) {
	pose, err := d.Estimate(img)
	if err != nil {
		return nil, err
	}

	score := pose.MeanScore()
	if score < d.config.MinScore {
		logger.Tracef(ctx, "pose score %.2f below %.2f, no subject", score, d.config.MinScore)
		return nil, nil
	}
	return pose.Landmarks(), nil
}

// Estimate runs the model and returns every keypoint with its score
func (d *PoseDetector) Estimate(img gocv.Mat) (Pose, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	size := d.config.InputSize

	// The model wants a square input; stretching keeps normalized
	// coordinates valid for the original frame
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	pixels := resized.ToBytes()
	shape := []int64{1, int64(size), int64(size), 3}

	var input ort.Value
	if d.config.FloatInput {
		data := make([]float32, len(pixels))
		for i, p := range pixels {
			data[i] = float32(p)
		}
		tensor, err := inference.CreateTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor: %w", err)
		}
		defer tensor.Destroy()
		input = tensor
	} else {
		data := make([]int32, len(pixels))
		for i, p := range pixels {
			data[i] = int32(p)
		}
		tensor, err := inference.CreateTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor: %w", err)
		}
		defer tensor.Destroy()
		input = tensor
	}

	k := d.config.NumKeypoints
	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 1, int64(k), 3})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := d.session.Run([]ort.Value{input}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("pose inference failed: %w", err)
	}

	return decodePose(outputTensor.GetData(), k), nil
}

// decodePose converts (y, x, score) rows into keypoints
func decodePose(output []float32, numKeypoints int) Pose {
	if len(output) < numKeypoints*3 {
		numKeypoints = len(output) / 3
	}
	pose := make(Pose, numKeypoints)
	for i := 0; i < numKeypoints; i++ {
		pose[i] = Keypoint{
			Landmark: geometry.Landmark{
				X: float64(output[i*3+1]),
				Y: float64(output[i*3]),
			},
			Score: output[i*3+2],
		}
	}
	return pose
}

// Close releases detector resources
func (d *PoseDetector) Close() error {
	return d.session.Destroy()
}
