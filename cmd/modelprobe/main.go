package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tsawler/go-metal/checkpoints"

	"github.com/dudu/reframe/internal/detector"
	"github.com/dudu/reframe/internal/inference"
)

func main() {
	libraryPath := pflag.String("onnxruntime-library", inference.DefaultLibraryPath, "ONNX Runtime shared library")
	metal := pflag.Bool("metal", false, "Also try importing the model with go-metal")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: modelprobe [options] <model.onnx>\n\n")
		fmt.Fprintf(os.Stderr, "Checks that a pose model loads and shows its inputs and outputs.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	if err := probe(context.Background(), pflag.Arg(0), *libraryPath, *metal); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func probe(ctx context.Context, modelPath, libraryPath string, metal bool) error {
	fmt.Printf("Testing model: %s\n", modelPath)

	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model not found: %w", err)
	}

	if err := inference.Initialize(ctx, libraryPath); err != nil {
		return err
	}
	defer inference.Shutdown()

	inputs, outputs, err := inference.Inspect(modelPath)
	if err != nil {
		return err
	}

	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}

	if msg := checkPoseLayout(inputs, outputs); msg != "" {
		fmt.Printf("\nWarning: %s\n", msg)
	} else {
		fmt.Println("\nModel layout matches the pose detector")
	}

	if metal {
		importWithMetal(modelPath)
	}
	return nil
}

// checkPoseLayout returns a description of what does not match
// detector.DefaultPoseConfig, or "" when everything does
func checkPoseLayout(inputs, outputs []inference.IOInfo) string {
	want := detector.DefaultPoseConfig("")
	if len(inputs) != 1 || len(outputs) != 1 {
		return fmt.Sprintf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.Name != want.InputName || out.Name != want.OutputName {
		return fmt.Sprintf("tensor names %q/%q differ from %q/%q; set detector.input_name and detector.output_name",
			in.Name, out.Name, want.InputName, want.OutputName)
	}
	if len(in.Dimensions) != 4 || in.Dimensions[3] != 3 {
		return fmt.Sprintf("input shape %v is not [1, H, W, 3]", in.Dimensions)
	}
	if len(out.Dimensions) != 4 || out.Dimensions[3] != 3 {
		return fmt.Sprintf("output shape %v is not [1, 1, K, 3]", out.Dimensions)
	}
	return ""
}

func importWithMetal(modelPath string) {
	fmt.Println("\nAttempting to import with go-metal...")
	checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(modelPath)
	if err != nil {
		fmt.Printf("go-metal cannot import this model: %v\n", err)
		return
	}

	fmt.Printf("  Layers: %d\n", len(checkpoint.ModelSpec.Layers))
	fmt.Printf("  Weights: %d tensors\n", len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
}
