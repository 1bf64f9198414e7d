package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDecodePose(t *testing.T) {
	t.Parallel()

	// rows are (y, x, score)
	output := []float32{
		0.10, 0.50, 0.9,
		0.20, 0.40, 0.5,
		0.90, 0.60, 0.1,
	}

	pose := decodePose(output, 3)
	require.Len(t, pose, 3)
	assert.InDelta(t, 0.5, pose[0].X, 1e-6)
	assert.InDelta(t, 0.1, pose[0].Y, 1e-6)
	assert.InDelta(t, 0.6, pose[2].X, 1e-6)
	assert.InDelta(t, 0.9, pose[2].Y, 1e-6)
	assert.InDelta(t, 0.5, pose.MeanScore(), 1e-6)

	lms := pose.Landmarks()
	require.Len(t, lms, 3)
	assert.Equal(t, pose[1].Landmark, lms[1])
}

func TestDecodePoseShortOutput(t *testing.T) {
	t.Parallel()

	pose := decodePose([]float32{0.1, 0.2, 0.3, 0.4}, NumKeypoints)
	require.Len(t, pose, 1)
}

func TestEmptyPose(t *testing.T) {
	t.Parallel()

	var pose Pose
	assert.Zero(t, pose.MeanScore())
	assert.Nil(t, pose.Landmarks())
	assert.False(t, pose.Landmarks().Present())
}

func TestNoneDetector(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	var d None
	lms, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	require.False(t, lms.Present())
	require.NoError(t, d.Close())
}
