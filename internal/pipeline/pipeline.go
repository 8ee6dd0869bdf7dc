// Package pipeline turns a scanned dataset into an encoding database.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/facedb/internal/dataset"
	"github.com/andresmejia3/facedb/internal/embedder"
	"github.com/andresmejia3/facedb/internal/encodings"
	"github.com/andresmejia3/facedb/internal/loader"
	"github.com/andresmejia3/facedb/internal/types"
	"github.com/go-logr/logr"
)

// Options controls a build.
type Options struct {
	Strategy types.Strategy
	Logger   logr.Logger
	// OnFile, if set, is called once per visited file after it is processed.
	OnFile func(types.FileResult)
}

// Report summarizes a build. Decoded+SkippedUnreadable+SkippedNoFace == Files.
type Report struct {
	People            int
	Files             int
	Decoded           int
	SkippedUnreadable int
	SkippedNoFace     int
	Faces             int
}

func (r *Report) add(res types.FileResult) {
	r.Files++
	r.Faces += res.Faces
	switch res.Outcome {
	case types.Decoded:
		r.Decoded++
	case types.SkippedUnreadable:
		r.SkippedUnreadable++
	case types.SkippedNoFace:
		r.SkippedNoFace++
	}
}

// Build walks people in order, then files, then faces, appending one record per
// detected face labeled with the person's name.
func Build(ctx context.Context, people []dataset.Person, emb embedder.Embedder, opts Options) (*encodings.Database, Report, error) {
	if opts.Strategy == "" {
		opts.Strategy = types.StrategyHOG
	}
	log := opts.Logger

	db := encodings.New()
	report := Report{People: len(people)}

	for _, person := range people {
		log.V(1).Info("processing person", "name", person.Name, "files", len(person.Files))

		for _, path := range person.Files {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}

			res, err := processFile(ctx, db, emb, person.Name, path, opts.Strategy)
			if err != nil {
				return nil, report, err
			}

			report.add(res)
			log.V(1).Info("file processed", "path", path, "outcome", res.Outcome.String(), "faces", res.Faces)
			if opts.OnFile != nil {
				opts.OnFile(res)
			}
		}
	}

	return db, report, nil
}

// processFile handles one image. Unreadable files and faceless images are
// outcomes, not errors; embedder failures are errors.
func processFile(ctx context.Context, db *encodings.Database, emb embedder.Embedder, label, path string, strategy types.Strategy) (types.FileResult, error) {
	res := types.FileResult{Path: path, Label: label}

	img, err := loader.Load(path)
	if err != nil {
		if errors.Is(err, loader.ErrUnreadable) {
			res.Outcome = types.SkippedUnreadable
			return res, nil
		}
		return res, err
	}

	boxes, err := emb.LocateFaces(ctx, img, strategy)
	if err != nil {
		if errors.Is(err, loader.ErrUnreadable) {
			res.Outcome = types.SkippedUnreadable
			return res, nil
		}
		return res, fmt.Errorf("failed to locate faces in %s: %w", path, err)
	}
	if len(boxes) == 0 {
		res.Outcome = types.SkippedNoFace
		return res, nil
	}

	embs, err := emb.ComputeEmbeddings(ctx, img, boxes)
	if err != nil {
		return res, fmt.Errorf("failed to compute embeddings for %s: %w", path, err)
	}
	if len(embs) != len(boxes) {
		return res, fmt.Errorf("embedder returned %d embeddings for %d faces in %s", len(embs), len(boxes), path)
	}

	for _, e := range embs {
		db.Append(e, label)
	}
	res.Outcome = types.Decoded
	res.Faces = len(embs)
	res.Boxes = boxes
	return res, nil
}
