package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/facedb/internal/encodings"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection and pgvector operations.
type Store struct {
	conn *pgx.Conn
}

// Run describes one build mirrored into the database.
type Run struct {
	ID        uuid.UUID
	Dataset   string
	Detector  string
	FaceCount int
	BuiltAt   time.Time
}

// LabelSummary is the face count stored for one name.
type LabelSummary struct {
	Name  string
	Count int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables and vector extension if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS encoding_runs (
			id UUID PRIMARY KEY,
			dataset TEXT NOT NULL,
			detector TEXT NOT NULL,
			face_count INT NOT NULL,
			built_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_encodings (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES encoding_runs(id) ON DELETE CASCADE,
			position INT NOT NULL,
			name TEXT NOT NULL,
			embedding VECTOR NOT NULL
		);
		CREATE INDEX IF NOT EXISTS face_encodings_name_idx ON face_encodings (name);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// ReplaceEncodings swaps the stored database for db in a single transaction,
// the same overwrite semantics as the output file.
func (s *Store) ReplaceEncodings(ctx context.Context, run Run, db *encodings.Database) error {
	if err := db.Validate(); err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// ON DELETE CASCADE clears face_encodings too
	if _, err := tx.Exec(ctx, "DELETE FROM encoding_runs"); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO encoding_runs (id, dataset, detector, face_count, built_at)
		VALUES ($1::uuid, $2, $3, $4, NOW())
	`, run.ID.String(), run.Dataset, run.Detector, db.Len())
	if err != nil {
		return err
	}

	if db.Len() > 0 {
		batch := &pgx.Batch{}
		for i, vec := range db.Encodings {
			batch.Queue(`
				INSERT INTO face_encodings (run_id, position, name, embedding)
				VALUES ($1::uuid, $2, $3, $4::vector)
			`, run.ID.String(), i, db.Names[i], vecToString(vec))
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert encoding %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// LoadDatabase reads the mirrored encodings back in their original order.
func (s *Store) LoadDatabase(ctx context.Context) (*encodings.Database, error) {
	rows, err := s.conn.Query(ctx, "SELECT name, embedding::text FROM face_encodings ORDER BY position ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	db := encodings.New()
	for rows.Next() {
		var name, vecStr string
		if err := rows.Scan(&name, &vecStr); err != nil {
			return nil, err
		}
		vec, err := stringToVec(vecStr)
		if err != nil {
			return nil, err
		}
		db.Append(vec, name)
	}
	return db, rows.Err()
}

// ListLabels returns how many faces are stored per name.
func (s *Store) ListLabels(ctx context.Context) ([]LabelSummary, error) {
	rows, err := s.conn.Query(ctx, "SELECT name, COUNT(*) FROM face_encodings GROUP BY name ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []LabelSummary
	for rows.Next() {
		var l LabelSummary
		if err := rows.Scan(&l.Name, &l.Count); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// LatestRun returns the mirrored run, or nil if nothing has been written yet.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	var r Run
	var id string
	err := s.conn.QueryRow(ctx, `
		SELECT id::text, dataset, detector, face_count, built_at
		FROM encoding_runs ORDER BY built_at DESC LIMIT 1
	`).Scan(&id, &r.Dataset, &r.Detector, &r.FaceCount, &r.BuiltAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	return &r, nil
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_encodings CASCADE;
		DROP TABLE IF EXISTS encoding_runs CASCADE;
	`)
	return err
}

// vecToString formats a float slice into a PostgreSQL vector string format "[1.0,2.0,...]"
func vecToString(vec []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// stringToVec parses the text form of a pgvector value.
func stringToVec(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad vector component %q: %w", p, err)
		}
		vec[i] = v
	}
	return vec, nil
}
