package embedder

import (
	"context"
	"fmt"
	"image"

	"github.com/andresmejia3/facedb/internal/loader"
	"github.com/andresmejia3/facedb/internal/types"
	"github.com/andresmejia3/facedb/internal/utils"
	"github.com/andresmejia3/facedb/internal/worker"
)

// frameWorker is the protocol surface of worker.PythonWorker.
type frameWorker interface {
	Locate(rgb []byte, width, height int, strategy types.Strategy) ([]image.Rectangle, error)
	Encode(rgb []byte, width, height int, boxes []image.Rectangle) ([]types.Embedding, error)
	Close() error
}

// Python delegates to face_recognition running in a worker subprocess.
type Python struct {
	w   frameWorker
	cmd *utils.SafeCommand
}

// NewPython starts the worker script with the given interpreter.
func NewPython(ctx context.Context, python, script string) (*Python, error) {
	w, err := worker.NewPythonWorker(ctx, python, script)
	if err != nil {
		return nil, err
	}
	return &Python{w: w, cmd: w.Cmd}, nil
}

// Cmd exposes the subprocess so callers can dump its stderr on failure.
func (p *Python) Cmd() *utils.SafeCommand {
	return p.cmd
}

func (p *Python) LocateFaces(ctx context.Context, img *loader.Image, strategy types.Strategy) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	boxes, err := p.w.Locate(img.RGB, img.Width, img.Height, strategy)
	if err != nil {
		return nil, fmt.Errorf("locate faces in %s: %w", img.Path, err)
	}
	return boxes, nil
}

func (p *Python) ComputeEmbeddings(ctx context.Context, img *loader.Image, boxes []image.Rectangle) ([]types.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, nil
	}
	embs, err := p.w.Encode(img.RGB, img.Width, img.Height, boxes)
	if err != nil {
		return nil, fmt.Errorf("encode faces in %s: %w", img.Path, err)
	}
	return embs, nil
}

func (p *Python) Close() error {
	return p.w.Close()
}
