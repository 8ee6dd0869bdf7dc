package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/facedb/internal/store"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the people stored in the database mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		s, err := openStore(cmd.Context())
		if err != nil {
			return showError("Database unavailable", err, nil)
		}
		// Use Background here because the main context might be cancelled already (due to Ctrl+C)
		defer s.Close(context.Background())
		return runList(cmd.Context(), cmd.OutOrStdout(), s)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, out io.Writer, s *store.Store) error {
	run, err := s.LatestRun(ctx)
	if err != nil {
		return showError("Failed to read latest run", err, nil)
	}
	if run == nil {
		fmt.Fprintln(out, "No encodings found in database.")
		return nil
	}

	labels, err := s.ListLabels(ctx)
	if err != nil {
		return showError("Failed to list labels", err, nil)
	}

	fmt.Fprintf(out, "Run %s  dataset=%s  detector=%s  built=%s\n\n",
		run.ID.String()[:8], run.Dataset, run.Detector, run.BuiltAt.Local().Format("2006-01-02 15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tFACE COUNT")
	fmt.Fprintln(w, "----\t----------")
	for _, l := range labels {
		fmt.Fprintf(w, "%s\t%d\n", l.Name, l.Count)
	}
	return w.Flush()
}
