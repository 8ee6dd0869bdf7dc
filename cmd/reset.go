package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facedb/internal/config"
	"github.com/spf13/cobra"
)

var (
	resetDB     bool
	resetFiles  bool
	resetYes    bool
	resetOutput string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Database mirror, Encoding file)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		clearDB, clearFiles := resetDB, resetFiles
		// If no flags are set, default to clearing EVERYTHING
		if !clearDB && !clearFiles {
			clearDB, clearFiles = true, true
		}

		// An explicit --db-tables needs a database; the default sweep skips it
		hasDB := resolveDBURL() != ""
		if resetDB && !hasDB {
			return showError("Database unavailable", errNoDatabase, nil)
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		if clearDB && hasDB {
			if resetYes || confirm(out, reader, "⚠️  Are you sure you want to DROP all encoding tables?") {
				fmt.Fprintln(out, "🗑️  Clearing Database...")
				s, err := openStore(cmd.Context())
				if err != nil {
					return showError("Database unavailable", err, nil)
				}
				defer s.Close(context.Background())
				if err := s.Reset(cmd.Context()); err != nil {
					return showError("Failed to reset database", err, nil)
				}
			}
		}

		if clearFiles {
			path := resetOutput
			if path == "" {
				path = config.FromEnv().OutputPath
			}
			if resetYes || confirm(out, reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", path)) {
				fmt.Fprintln(out, "🗑️  Clearing Encoding File...")
				removeFile(path)
			}
		}

		fmt.Fprintln(out, "✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db-tables", false, "Drop the PostgreSQL mirror tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete the encoding database file")
	resetCmd.Flags().StringVarP(&resetOutput, "output", "o", "", "Encoding database file to delete (default: $FACEDB_OUTPUT or encodings.gob)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(out io.Writer, r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
