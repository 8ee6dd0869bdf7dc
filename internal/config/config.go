package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/andresmejia3/facedb/internal/types"
	"github.com/joho/godotenv"
)

// Embedder backends.
const (
	BackendDlib   = "dlib"
	BackendPython = "python"
)

// Config carries everything a build needs. It replaces hardcoded paths so the
// pipeline can run against temporary directories.
type Config struct {
	DatasetRoot  string
	OutputPath   string
	Strategy     types.Strategy
	Backend      string
	ModelsDir    string
	WorkerScript string
	PythonBin    string
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		DatasetRoot:  "dataset",
		OutputPath:   "encodings.gob",
		Strategy:     types.StrategyHOG,
		Backend:      BackendDlib,
		ModelsDir:    "models",
		WorkerScript: "python/encode_worker.py",
		PythonBin:    "python3",
	}
}

// LoadEnvFile reads a .env file into the process environment.
// A missing file is not an error; variables already set are left alone.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// FromEnv overlays FACEDB_* environment variables on Default.
func FromEnv() Config {
	cfg := Default()
	if v := os.Getenv("FACEDB_DATASET"); v != "" {
		cfg.DatasetRoot = v
	}
	if v := os.Getenv("FACEDB_OUTPUT"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("FACEDB_DETECTOR"); v != "" {
		cfg.Strategy = types.Strategy(v)
	}
	if v := os.Getenv("FACEDB_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("FACEDB_MODELS"); v != "" {
		cfg.ModelsDir = v
	}
	if v := os.Getenv("FACEDB_WORKER"); v != "" {
		cfg.WorkerScript = v
	}
	if v := os.Getenv("FACEDB_PYTHON"); v != "" {
		cfg.PythonBin = v
	}
	return cfg
}

// Validate checks the configuration before any heavy process starts.
func (c Config) Validate() error {
	info, err := os.Stat(c.DatasetRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("dataset root %s does not exist", c.DatasetRoot)
		}
		return fmt.Errorf("unable to access dataset root %s: %w", c.DatasetRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("dataset root %s is not a directory", c.DatasetRoot)
	}
	if c.OutputPath == "" {
		return errors.New("output path must not be empty")
	}
	if _, err := types.ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	switch c.Backend {
	case BackendDlib:
		if c.ModelsDir == "" {
			return errors.New("dlib backend requires a models directory")
		}
	case BackendPython:
		if c.WorkerScript == "" || c.PythonBin == "" {
			return errors.New("python backend requires a worker script and interpreter")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendDlib, BackendPython)
	}
	return nil
}

// DatabaseURL resolves the PostgreSQL connection string from DATABASE_URL or
// the POSTGRES_* variables. It returns "" when neither is present.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
