package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/enroll/internal/store"
	"github.com/andresmejia3/enroll/internal/utils"
	"github.com/spf13/cobra"
)

var (
	listDatabase string
	listLimit    int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled faces and, with a journal, recent ingestion outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		override(cmd, "database", &cfg.DatabaseDir, listDatabase)
		cmd.SilenceUsage = true
		return runList(cmd.Context())
	},
}

func init() {
	listCmd.Flags().StringVarP(&listDatabase, "database", "o", "stored-faces", "Folder holding enrolled face crops")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Number of journal events to show")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) error {
	if err := listFaces(os.Stdout, cfg.DatabaseDir); err != nil {
		utils.ShowError("Failed to list face database", err, nil)
		return err
	}

	if DB == nil {
		return nil
	}
	events, err := DB.RecentOutcomes(ctx, listLimit)
	if err != nil {
		utils.ShowError("Failed to read journal", err, nil)
		return err
	}
	fmt.Println()
	listEvents(os.Stdout, events)
	return nil
}

func listFaces(out io.Writer, dir string) error {
	names, err := utils.ListImages(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No faces enrolled yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LABEL\tSIZE\tADDED")
	fmt.Fprintln(w, "-----\t----\t-----")
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, info.Size(), info.ModTime().Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d faces enrolled.\n", len(names))
	return nil
}

func listEvents(out io.Writer, events []store.Event) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No journal events recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tFILE\tOUTCOME\tMATCH")
	fmt.Fprintln(w, "----\t----\t-------\t-----")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Filename, e.Outcome, e.MatchedLabel)
	}
	w.Flush()
}
