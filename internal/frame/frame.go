package frame

import (
	"errors"

	"gocv.io/x/gocv"
)

// Frame is one BGR image of a video together with its position in the stream
type Frame struct {
	Index int
	Mat   gocv.Mat
}

// Close releases the pixel buffer
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Sequence is an ordered list of frames owned by a single run
type Sequence []Frame

// Len returns the number of frames
func (s Sequence) Len() int {
	return len(s)
}

// SizeBytes returns the total pixel payload held by the sequence
func (s Sequence) SizeBytes() uint64 {
	var total uint64
	for i := range s {
		total += uint64(s[i].Mat.Total()) * uint64(s[i].Mat.ElemSize())
	}
	return total
}

// Close releases every frame of the sequence
func (s Sequence) Close() error {
	var errs []error
	for i := range s {
		if err := s[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
