package transform

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/geometry"
)

// halves builds a frame whose left half is blue and right half is red (BGR).
func halves(t *testing.T, width, height int) gocv.Mat {
	t.Helper()

	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	left := img.Region(image.Rect(0, 0, width/2, height))
	left.SetTo(gocv.NewScalar(255, 0, 0, 0))
	left.Close()
	right := img.Region(image.Rect(width/2, 0, width, height))
	right.SetTo(gocv.NewScalar(0, 0, 255, 0))
	right.Close()
	return img
}

func TestCropResizeOutputSize(t *testing.T) {
	src := halves(t, 320, 180)
	defer src.Close()

	out := geometry.Dimensions{Width: 101, Height: 180}
	for _, win := range []geometry.CropWindow{
		{XStart: 0, XEnd: 101},
		{XStart: 250, XEnd: 320},
		{XStart: 0, XEnd: 320},
		{XStart: 10, XEnd: 11},
	} {
		res, err := CropResize(src, win, out)
		require.NoError(t, err, "window %s", win)
		require.Equal(t, out.Width, res.Cols())
		require.Equal(t, out.Height, res.Rows())
		require.Equal(t, 3, res.Channels())
		res.Close()
	}
}

func TestCropResizeSelectsWindow(t *testing.T) {
	src := halves(t, 320, 180)
	defer src.Close()

	out := geometry.Dimensions{Width: 64, Height: 90}

	red, err := CropResize(src, geometry.CropWindow{XStart: 200, XEnd: 300}, out)
	require.NoError(t, err)
	defer red.Close()
	for _, x := range []int{0, 31, 63} {
		px := red.GetVecbAt(45, x)
		require.Equal(t, gocv.Vecb{0, 0, 255}, px, "x=%d", x)
	}

	blue, err := CropResize(src, geometry.CropWindow{XStart: 0, XEnd: 100}, out)
	require.NoError(t, err)
	defer blue.Close()
	require.Equal(t, gocv.Vecb{255, 0, 0}, blue.GetVecbAt(10, 10))
}

func TestCropResizeRejectsBadInput(t *testing.T) {
	src := halves(t, 100, 50)
	defer src.Close()

	out := geometry.Dimensions{Width: 28, Height: 50}

	_, err := CropResize(src, geometry.CropWindow{XStart: -1, XEnd: 20}, out)
	require.Error(t, err)

	_, err = CropResize(src, geometry.CropWindow{XStart: 50, XEnd: 120}, out)
	require.Error(t, err)

	_, err = CropResize(src, geometry.CropWindow{XStart: 30, XEnd: 30}, out)
	require.Error(t, err)

	_, err = CropResize(src, geometry.CropWindow{XStart: 0, XEnd: 28}, geometry.Dimensions{})
	require.Error(t, err)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = CropResize(empty, geometry.CropWindow{XStart: 0, XEnd: 28}, out)
	require.Error(t, err)
}

func TestSwapChannels(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(10, 20, 30, 0))

	swapped := SwapChannels(img)
	defer swapped.Close()
	require.Equal(t, gocv.Vecb{30, 20, 10}, swapped.GetVecbAt(1, 1))
}
