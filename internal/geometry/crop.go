// Package geometry derives the per-frame crop window from subject landmarks.
//
// Everything here is pure integer/float arithmetic so it can be tested without
// any model or codec.
package geometry

import "math"

// NominalWidth is the crop width a frame of the given height needs to reach
// the target aspect ratio (width/height).
func NominalWidth(height int, ratio float64) int {
	return int(math.Round(float64(height) * ratio))
}

// OutputDimensions returns the fixed size every frame of a run is resized to.
// It is computed once from the first frame and never changes during the run.
func OutputDimensions(source Dimensions, ratio float64) Dimensions {
	return Dimensions{
		Width:  NominalWidth(source.Height, ratio),
		Height: source.Height,
	}
}

// BoundingBoxOf maps normalized landmarks to pixels and returns their
// min/max box. The second result is false when the set is empty.
func BoundingBoxOf(source Dimensions, landmarks LandmarkSet) (BoundingBox, bool) {
	if !landmarks.Present() {
		return BoundingBox{}, false
	}

	box := BoundingBox{
		XMin: math.MaxInt, YMin: math.MaxInt,
		XMax: math.MinInt, YMax: math.MinInt,
	}
	for _, lm := range landmarks {
		x := int(math.Round(lm.X * float64(source.Width)))
		y := int(math.Round(lm.Y * float64(source.Height)))

		if x < box.XMin {
			box.XMin = x
		}
		if y < box.YMin {
			box.YMin = y
		}
		if x > box.XMax {
			box.XMax = x
		}
		if y > box.YMax {
			box.YMax = y
		}
	}
	return box, true
}

// ComputeCropWindow returns the horizontal crop for one frame.
//
// With landmarks, the window of nominal width is centered on the landmark box
// and each edge is clamped to the frame on its own, so near the left or right
// border the window gets narrower instead of sliding back inside.
// Without landmarks the window is centered in the frame.
func ComputeCropWindow(source Dimensions, ratio float64, landmarks LandmarkSet) CropWindow {
	nominal := NominalWidth(source.Height, ratio)

	box, ok := BoundingBoxOf(source, landmarks)
	if !ok {
		return clampWindow(CropWindow{
			XStart: floorDiv(source.Width-nominal, 2),
			XEnd:   floorDiv(source.Width+nominal, 2),
		}, source.Width)
	}

	centerX := clampInt(box.CenterX(), 0, source.Width)
	xStart := centerX - nominal/2
	return clampWindow(CropWindow{
		XStart: xStart,
		XEnd:   xStart + nominal,
	}, source.Width)
}

// clampWindow clamps each edge to [0, width] and keeps at least one column
func clampWindow(w CropWindow, width int) CropWindow {
	w.XStart = max(0, w.XStart)
	w.XEnd = min(width, w.XEnd)
	if w.XEnd <= w.XStart && width > 0 {
		w.XStart = min(w.XStart, width-1)
		w.XEnd = w.XStart + 1
	}
	return w
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
