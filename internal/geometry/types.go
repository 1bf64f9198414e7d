package geometry

import "fmt"

// Landmark is a normalized keypoint in [0,1]x[0,1]
type Landmark struct {
	X, Y float64
}

// LandmarkSet is the ordered keypoint list returned by a detector for one frame.
// A nil or empty set means no subject was found.
type LandmarkSet []Landmark

// Present reports whether the detector found a subject
func (s LandmarkSet) Present() bool {
	return len(s) > 0
}

// Dimensions is a frame size in pixels
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Valid reports whether both sides are positive
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// BoundingBox is an integer pixel rectangle around all landmarks of a frame
type BoundingBox struct {
	XMin, YMin int // top-left
	XMax, YMax int // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() int {
	return b.XMax - b.XMin
}

// Height returns box height
func (b BoundingBox) Height() int {
	return b.YMax - b.YMin
}

// CenterX returns the horizontal center, floored
func (b BoundingBox) CenterX() int {
	return floorDiv(b.XMin+b.XMax, 2)
}

// CropWindow holds the horizontal bounds [XStart, XEnd) of a crop.
// The crop always spans the full source height.
type CropWindow struct {
	XStart int
	XEnd   int
}

// Width returns the actual crop width
func (w CropWindow) Width() int {
	return w.XEnd - w.XStart
}

func (w CropWindow) String() string {
	return fmt.Sprintf("[%d,%d)", w.XStart, w.XEnd)
}
