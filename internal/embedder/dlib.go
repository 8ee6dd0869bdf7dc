package embedder

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facedb/internal/loader"
	"github.com/andresmejia3/facedb/internal/types"
)

// recognizer is the subset of *face.Recognizer used here.
type recognizer interface {
	Recognize(imgData []byte) ([]face.Face, error)
	RecognizeCNN(imgData []byte) ([]face.Face, error)
	Close()
}

// Dlib runs go-face in process. go-face detects and describes in a single call,
// so the faces of the last image are cached and ComputeEmbeddings reads from there.
type Dlib struct {
	rec recognizer

	lastID    string
	lastFaces []face.Face
}

// NewDlib loads the dlib models from modelsDir (shape predictor, resnet, and
// mmod_human_face_detector.dat for cnn).
func NewDlib(modelsDir string) (*Dlib, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize recognizer from %s: %w", modelsDir, err)
	}
	return &Dlib{rec: rec}, nil
}

func (d *Dlib) LocateFaces(ctx context.Context, img *loader.Image, strategy types.Strategy) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	faces, err := d.recognize(img, strategy)
	if err != nil {
		return nil, err
	}
	boxes := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		boxes[i] = f.Rectangle
	}
	return boxes, nil
}

func (d *Dlib) ComputeEmbeddings(ctx context.Context, img *loader.Image, boxes []image.Rectangle) ([]types.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, nil
	}
	faces := d.lastFaces
	if d.lastID != img.ID {
		var err error
		if faces, err = d.recognize(img, types.StrategyHOG); err != nil {
			return nil, err
		}
	}
	return matchDescriptors(faces, boxes)
}

func (d *Dlib) Close() error {
	d.rec.Close()
	return nil
}

func (d *Dlib) recognize(img *loader.Image, strategy types.Strategy) ([]face.Face, error) {
	data, err := img.JPEG()
	if err != nil {
		return nil, err
	}

	var faces []face.Face
	switch strategy {
	case types.StrategyCNN:
		faces, err = d.rec.RecognizeCNN(data)
	default:
		faces, err = d.rec.Recognize(data)
	}
	if err != nil {
		// dlib's own jpeg loader can reject files the Go decoders accepted
		var loadErr face.ImageLoadError
		if errors.As(err, &loadErr) {
			return nil, fmt.Errorf("%w: %s: %v", loader.ErrUnreadable, img.Path, err)
		}
		return nil, fmt.Errorf("recognition failed for %s: %w", img.Path, err)
	}

	d.lastID = img.ID
	d.lastFaces = faces
	return faces, nil
}

// matchDescriptors picks the descriptor for each requested box by exact rectangle.
func matchDescriptors(faces []face.Face, boxes []image.Rectangle) ([]types.Embedding, error) {
	embs := make([]types.Embedding, 0, len(boxes))
	for _, box := range boxes {
		found := false
		for _, f := range faces {
			if f.Rectangle != box {
				continue
			}
			vec := make(types.Embedding, len(f.Descriptor))
			for i, v := range f.Descriptor {
				vec[i] = float64(v)
			}
			embs = append(embs, vec)
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("no face descriptor for box %v", box)
		}
	}
	return embs, nil
}
