package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/facedb/internal/config"
	"github.com/andresmejia3/facedb/internal/encodings"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [encodings_file]",
	Short: "Summarize an encoding database file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path := config.FromEnv().OutputPath
		if len(args) == 1 {
			path = args[0]
		}
		return runInspect(cmd.OutOrStdout(), path)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(out io.Writer, path string) error {
	db, err := encodings.Load(path)
	if err != nil {
		return showError("Failed to read encoding database", err, nil)
	}

	fmt.Fprintf(out, "📦 %s: %d encodings, %d names, dimension %d\n", path, len(db.Encodings), len(db.Names), db.Dim())
	if db.Len() == 0 {
		fmt.Fprintln(out, "No encodings found in file.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tFACE COUNT")
	fmt.Fprintln(w, "----\t----------")
	for _, l := range db.Labels() {
		fmt.Fprintf(w, "%s\t%d\n", l.Name, l.Count)
	}
	return w.Flush()
}
