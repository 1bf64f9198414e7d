package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/reframe/internal/pipeline"
)

// Keys that stop a run from the preview window
const (
	KeyQuit   = 'q'
	KeyEscape = 27
)

var overlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	canvas     gocv.Mat
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a new preview window
func NewWindow(name string) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		canvas:    gocv.NewMat(),
		lastFrame: time.Now(),
	}
}

// Show displays a copy of img with the run's progress drawn over it.
// img itself is left untouched.
func (w *Window) Show(img gocv.Mat, progress pipeline.Progress) {
	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	img.CopyTo(&w.canvas)

	gocv.PutText(&w.canvas, ProgressText(progress), image.Pt(8, 20),
		gocv.FontHersheyPlain, 1.2, overlayColor, 1)
	gocv.PutText(&w.canvas, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(8, 40),
		gocv.FontHersheyPlain, 1.2, overlayColor, 1)

	w.window.IMShow(w.canvas)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// QuitRequested pumps window events and reports whether q or ESC was pressed
func (w *Window) QuitRequested() bool {
	key := w.WaitKey(1)
	return key == KeyQuit || key == KeyEscape
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	w.canvas.Close()
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}

// ProgressText renders progress the way the preview overlay and the
// console status line show it
func ProgressText(p pipeline.Progress) string {
	if p.Total == 0 {
		return fmt.Sprintf("%s: %d frames", p.State, p.Processed)
	}
	return fmt.Sprintf("%s: %d/%d frames (%d%%)", p.State, p.Processed, p.Total, p.Percent)
}
