package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facedb/internal/config"
	"github.com/andresmejia3/facedb/internal/store"
	"github.com/andresmejia3/facedb/internal/utils"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var (
	// dbURL is the connection string for the optional PostgreSQL mirror
	dbURL string
	// envFile is loaded into the environment before any command runs
	envFile   string
	verbosity int

	// logger is the diagnostic logger shared by subcommands
	logger = logr.Discard()
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facedb",
	Short:   "Face encoding database builder",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		logger = utils.NewLogger(os.Stderr, verbosity)
		return nil
	},
	// Errors are printed once by Execute, or already boxed by showError
	SilenceErrors: true,
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// shownError marks an error that was already reported in a box.
type shownError struct{ error }

func (e shownError) Unwrap() error { return e.error }

// showError prints the boxed report and returns err marked as shown.
func showError(context string, err error, s *utils.SafeCommand) error {
	utils.ShowError(context, err, s)
	return shownError{err}
}

// printError prints errors that no command has reported yet (flag and argument errors).
func printError(w io.Writer, err error) {
	var shown shownError
	if errors.As(err, &shown) {
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the encoding mirror (default: $DATABASE_URL or $POSTGRES_*)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before running")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
}

// resolveDBURL prefers the --db flag, then the environment.
func resolveDBURL() string {
	if dbURL != "" {
		return dbURL
	}
	return config.DatabaseURL()
}

var errNoDatabase = errors.New("no database configured (use --db, DATABASE_URL or POSTGRES_HOST)")

// openStore connects to the mirror. Callers close it with context.Background so
// the "Close" still goes out after Ctrl+C cancelled the command context.
func openStore(ctx context.Context) (*store.Store, error) {
	url := resolveDBURL()
	if url == "" {
		return nil, errNoDatabase
	}
	s, err := store.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return s, nil
}
