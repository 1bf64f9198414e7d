// Package transform turns a source frame into a fixed-size output frame.
package transform

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/geometry"
)

// CropResize cuts the full-height window out of src and resizes it with
// linear interpolation to exactly out. The caller owns the returned Mat.
//
// The window may be narrower than out.Width (see geometry.ComputeCropWindow);
// the resize always normalizes it so every frame of a run has the same size.
func CropResize(src gocv.Mat, win geometry.CropWindow, out geometry.Dimensions) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty source frame")
	}
	if !out.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid output dimensions %s", out)
	}
	if win.XStart < 0 || win.XEnd > src.Cols() || win.Width() <= 0 {
		return gocv.NewMat(), fmt.Errorf("crop window %s outside frame of width %d", win, src.Cols())
	}

	roi := src.Region(image.Rect(win.XStart, 0, win.XEnd, src.Rows()))
	defer roi.Close()

	resized := gocv.NewMat()
	gocv.Resize(roi, &resized, image.Pt(out.Width, out.Height), 0, 0, gocv.InterpolationLinear)
	if resized.Empty() {
		resized.Close()
		return gocv.NewMat(), fmt.Errorf("resize to %s produced an empty frame", out)
	}

	return resized, nil
}

// SwapChannels returns a copy of img with the first and third channels
// exchanged. Frames are decoded as BGR, so the detector receives RGB.
func SwapChannels(img gocv.Mat) gocv.Mat {
	swapped := gocv.NewMat()
	gocv.CvtColor(img, &swapped, gocv.ColorRGBToBGR)
	return swapped
}
