// Package embedder adapts face detection/description libraries to the two
// calls the pipeline makes: locate faces, then embed them.
package embedder

import (
	"context"
	"image"

	"github.com/andresmejia3/facedb/internal/loader"
	"github.com/andresmejia3/facedb/internal/types"
)

// Embedder locates faces and computes one embedding per box, in box order.
// Implementations are not safe for concurrent use.
type Embedder interface {
	LocateFaces(ctx context.Context, img *loader.Image, strategy types.Strategy) ([]image.Rectangle, error)
	ComputeEmbeddings(ctx context.Context, img *loader.Image, boxes []image.Rectangle) ([]types.Embedding, error)
	Close() error
}
