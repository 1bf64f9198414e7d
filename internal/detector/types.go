// Package detector finds the subject's body landmarks in a frame.
package detector

import "github.com/dudu/reframe/internal/geometry"

// Body keypoint indices in COCO order, as produced by MoveNet-style pose models
const (
	Nose = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	NumKeypoints
)

// Keypoint is one landmark with the model's confidence for it
type Keypoint struct {
	geometry.Landmark
	Score float32
}

// Pose is a full set of keypoints for one subject
type Pose []Keypoint

// MeanScore returns the average keypoint confidence
func (p Pose) MeanScore() float32 {
	if len(p) == 0 {
		return 0
	}
	var sum float32
	for _, kp := range p {
		sum += kp.Score
	}
	return sum / float32(len(p))
}

// Landmarks drops the scores. Every keypoint is kept, confident or not,
// so the bounding box covers the whole predicted body.
func (p Pose) Landmarks() geometry.LandmarkSet {
	if len(p) == 0 {
		return nil
	}
	set := make(geometry.LandmarkSet, len(p))
	for i, kp := range p {
		set[i] = kp.Landmark
	}
	return set
}
