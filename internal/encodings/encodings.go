// Package encodings holds the face encoding database and its on-disk form.
package encodings

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/andresmejia3/facedb/internal/types"
)

// Database is the accumulated (embedding, label) pairs as two order-aligned
// sequences. Append is the only mutation, so len(Encodings) == len(Names) holds.
// The exported field names are the on-disk schema read by downstream matchers.
type Database struct {
	Encodings [][]float64
	Names     []string
}

// New returns an empty database whose sequences encode as empty, not nil.
func New() *Database {
	return &Database{Encodings: [][]float64{}, Names: []string{}}
}

// Append records one face.
func (db *Database) Append(embedding types.Embedding, name string) {
	db.Encodings = append(db.Encodings, []float64(embedding))
	db.Names = append(db.Names, name)
}

// Len is the number of face records.
func (db *Database) Len() int {
	return len(db.Names)
}

// Dim is the embedding dimensionality, 0 when empty.
func (db *Database) Dim() int {
	if len(db.Encodings) == 0 {
		return 0
	}
	return len(db.Encodings[0])
}

// LabelCount is how many faces carry one label.
type LabelCount struct {
	Name  string
	Count int
}

// Labels returns the label multiset, sorted by name.
func (db *Database) Labels() []LabelCount {
	counts := make(map[string]int)
	for _, n := range db.Names {
		counts[n]++
	}
	out := make([]LabelCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, LabelCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks the alignment invariant and that every vector has the same length.
func (db *Database) Validate() error {
	if len(db.Encodings) != len(db.Names) {
		return fmt.Errorf("misaligned database: %d encodings, %d names", len(db.Encodings), len(db.Names))
	}
	dim := db.Dim()
	for i, e := range db.Encodings {
		if len(e) != dim {
			return fmt.Errorf("encoding %d has %d dimensions, expected %d", i, len(e), dim)
		}
	}
	return nil
}

// Save gob-encodes db to path, replacing whatever is there. The record is written
// to a temporary sibling first and renamed into place.
func Save(path string, db *Database) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	// No-op after a successful rename
	defer os.Remove(tmpName)

	if err := gob.NewEncoder(tmp).Encode(db); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode database: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move database into %s: %w", path, err)
	}
	return nil
}

// Load decodes a database written by Save.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	db := New()
	if err := gob.NewDecoder(f).Decode(db); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := db.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return db, nil
}
