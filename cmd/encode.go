package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/facedb/internal/config"
	"github.com/andresmejia3/facedb/internal/dataset"
	"github.com/andresmejia3/facedb/internal/embedder"
	"github.com/andresmejia3/facedb/internal/encodings"
	"github.com/andresmejia3/facedb/internal/pipeline"
	"github.com/andresmejia3/facedb/internal/store"
	"github.com/andresmejia3/facedb/internal/types"
	"github.com/andresmejia3/facedb/internal/utils"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	encodeOpts  config.Config
	encodeQuiet bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build the face encoding database from a labeled image directory",
	Long: `Walks <dataset>/<person>/<image>, detects every face in every image and writes
the (embedding, person) pairs to a single gob file for face matchers to load.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEncode(cmd.Context(), resolveEncodeConfig(cmd), encodeQuiet)
	},
}

func init() {
	def := config.Default()
	encodeCmd.Flags().StringVarP(&encodeOpts.DatasetRoot, "input", "i", def.DatasetRoot, "Dataset root containing one directory per person ($FACEDB_DATASET)")
	encodeCmd.Flags().StringVarP(&encodeOpts.OutputPath, "output", "o", def.OutputPath, "Path of the encoding database to write ($FACEDB_OUTPUT)")
	encodeCmd.Flags().StringVarP((*string)(&encodeOpts.Strategy), "detector", "m", string(def.Strategy), "Face detector: hog (fast) or cnn (accurate) ($FACEDB_DETECTOR)")
	encodeCmd.Flags().StringVar(&encodeOpts.Backend, "backend", def.Backend, "Embedding backend: dlib or python ($FACEDB_BACKEND)")
	encodeCmd.Flags().StringVar(&encodeOpts.ModelsDir, "models", def.ModelsDir, "Directory holding the dlib model files ($FACEDB_MODELS)")
	encodeCmd.Flags().StringVar(&encodeOpts.WorkerScript, "worker", def.WorkerScript, "Python worker script for the python backend ($FACEDB_WORKER)")
	encodeCmd.Flags().StringVar(&encodeOpts.PythonBin, "python", def.PythonBin, "Python interpreter for the python backend ($FACEDB_PYTHON)")
	encodeCmd.Flags().BoolVarP(&encodeQuiet, "quiet", "q", false, "Hide the progress bar")

	rootCmd.AddCommand(encodeCmd)
}

// resolveEncodeConfig layers explicitly set flags over the environment over defaults.
func resolveEncodeConfig(cmd *cobra.Command) config.Config {
	cfg := config.FromEnv()
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.DatasetRoot = encodeOpts.DatasetRoot
	}
	if f.Changed("output") {
		cfg.OutputPath = encodeOpts.OutputPath
	}
	if f.Changed("detector") {
		cfg.Strategy = encodeOpts.Strategy
	}
	if f.Changed("backend") {
		cfg.Backend = encodeOpts.Backend
	}
	if f.Changed("models") {
		cfg.ModelsDir = encodeOpts.ModelsDir
	}
	if f.Changed("worker") {
		cfg.WorkerScript = encodeOpts.WorkerScript
	}
	if f.Changed("python") {
		cfg.PythonBin = encodeOpts.PythonBin
	}
	return cfg
}

// newEmbedder starts the configured backend. Tests swap it for a fake.
var newEmbedder = func(ctx context.Context, cfg config.Config) (embedder.Embedder, error) {
	switch cfg.Backend {
	case config.BackendPython:
		return embedder.NewPython(ctx, cfg.PythonBin, cfg.WorkerScript)
	default:
		return embedder.NewDlib(cfg.ModelsDir)
	}
}

// runEncode orchestrates a build: validation, dataset scan, embedding, file write, mirror.
func runEncode(ctx context.Context, cfg config.Config, quiet bool) error {
	if err := cfg.Validate(); err != nil {
		return showError("Configuration Error", err, nil)
	}

	// 1. Enumerate people and their files
	people, err := dataset.Scan(cfg.DatasetRoot)
	if err != nil {
		return showError("Failed to scan dataset", err, nil)
	}
	totalFiles := dataset.CountFiles(people)
	runID := uuid.New()
	fmt.Fprintf(os.Stderr, "📂 Dataset %s: %d people, %d files\n", cfg.DatasetRoot, len(people), totalFiles)
	fmt.Fprintf(os.Stderr, "⚙️  Starting %s embedder (detector: %s)...\n", cfg.Backend, cfg.Strategy)
	logger.V(1).Info("build started", "run", runID.String(), "dataset", cfg.DatasetRoot, "output", cfg.OutputPath)

	// 2. Start the embedder
	emb, err := newEmbedder(ctx, cfg)
	if err != nil {
		return showError("Failed to start face embedder", err, nil)
	}
	defer emb.Close()

	// 3. Embed every face
	var barOut io.Writer = os.Stderr
	if quiet {
		barOut = io.Discard
	}
	barMax := totalFiles
	if barMax == 0 {
		barMax = -1 // Spinner mode
	}
	bar := progressbar.NewOptions(barMax,
		progressbar.OptionSetDescription("🔍 Encoding"),
		progressbar.OptionSetWriter(barOut),
		progressbar.OptionShowCount(),
	)

	db, report, err := pipeline.Build(ctx, people, emb, pipeline.Options{
		Strategy: cfg.Strategy,
		Logger:   logger,
		OnFile: func(types.FileResult) {
			bar.Add(1)
		},
	})
	if err != nil {
		return showError("Encoding failed", err, workerCommand(emb))
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	// 4. Persist (overwrites any previous database)
	if err := encodings.Save(cfg.OutputPath, db); err != nil {
		return showError("Failed to write encoding database", err, nil)
	}

	// 5. Mirror into PostgreSQL when one is configured
	if resolveDBURL() != "" {
		if err := mirrorToStore(ctx, runID, cfg, db); err != nil {
			return showError("Failed to mirror encodings to database", err, nil)
		}
		fmt.Fprintf(os.Stderr, "🗄️  Mirrored %d encodings to database (run %s)\n", db.Len(), runID.String()[:8])
	}

	printReport(os.Stderr, report)
	fmt.Printf("✅ Encodings have been saved to '%s'\n", cfg.OutputPath)
	return nil
}

func mirrorToStore(ctx context.Context, runID uuid.UUID, cfg config.Config, db *encodings.Database) error {
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	return s.ReplaceEncodings(ctx, store.Run{
		ID:       runID,
		Dataset:  cfg.DatasetRoot,
		Detector: string(cfg.Strategy),
	}, db)
}

// workerCommand returns the python subprocess, if any, so its stderr ends up in the error box.
func workerCommand(emb embedder.Embedder) *utils.SafeCommand {
	if p, ok := emb.(*embedder.Python); ok {
		return p.Cmd()
	}
	return nil
}

func printReport(w io.Writer, r pipeline.Report) {
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 ENCODING SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "👤 People:               %d\n", r.People)
	fmt.Fprintf(w, "🖼️  Files:                %d\n", r.Files)
	fmt.Fprintf(w, "   with faces:           %d\n", r.Decoded)
	fmt.Fprintf(w, "   no face found:        %d\n", r.SkippedNoFace)
	fmt.Fprintf(w, "   unreadable:           %d\n", r.SkippedUnreadable)
	fmt.Fprintf(w, "👁️  Faces encoded:        %d\n", r.Faces)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}
