package types

import (
	"fmt"
	"image"
)

// Strategy selects the face detector: hog is fast, cnn is slower but more accurate.
type Strategy string

const (
	StrategyHOG Strategy = "hog"
	StrategyCNN Strategy = "cnn"
)

// ParseStrategy validates a detector name coming from flags or the environment.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyHOG, StrategyCNN:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown detection strategy %q (want hog or cnn)", s)
}

// Embedding is a fixed-length face descriptor (128-d for both backends).
type Embedding []float64

// Outcome is what happened to a single file during a build.
type Outcome int

const (
	Decoded Outcome = iota
	SkippedUnreadable
	SkippedNoFace
)

func (o Outcome) String() string {
	switch o {
	case Decoded:
		return "decoded"
	case SkippedUnreadable:
		return "skipped-unreadable"
	case SkippedNoFace:
		return "skipped-no-face"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// FileResult reports the outcome of one file in a person directory.
type FileResult struct {
	Path    string
	Label   string
	Outcome Outcome
	Faces   int
	Boxes   []image.Rectangle
}
