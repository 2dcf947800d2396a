package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/enroll/internal/processed"
	"github.com/andresmejia3/enroll/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetLog      bool
	resetDatabase bool
	resetJournal  bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset state (processed log, face database, journal)",
	Long:  "Clears all state. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no flags are set, default to clearing EVERYTHING
		if !resetLog && !resetDatabase && !resetJournal {
			resetLog = true
			resetDatabase = true
			resetJournal = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetLog {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to forget every processed file in %s?", cfg.LogFile)) {
				fmt.Println("🗑️  Clearing Processed Log...")
				log, err := processed.Open(cfg.LogFile)
				if err == nil {
					err = log.Reset()
				}
				if err != nil {
					utils.ShowError("Failed to reset processed log", err, nil)
					return err
				}
			}
		}

		if resetDatabase {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete every enrolled face in %s?", cfg.DatabaseDir)) {
				fmt.Println("🗑️  Clearing Face Database...")
				if err := clearDatabase(cfg.DatabaseDir); err != nil {
					return err
				}
			}
		}

		if resetJournal && DB != nil {
			if confirm(reader, "⚠️  Are you sure you want to DROP all journal tables?") {
				fmt.Println("🗑️  Clearing Journal...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset journal", err, nil)
					return err
				}
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetLog, "log", false, "Clear the processed-files log")
	resetCmd.Flags().BoolVar(&resetDatabase, "database", false, "Delete enrolled face crops")
	resetCmd.Flags().BoolVar(&resetJournal, "journal", false, "Drop the PostgreSQL journal tables")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// clearDatabase empties the face database folder, reporting any failure in the error box.
func clearDatabase(dir string) error {
	n, err := clearImages(dir)
	if err != nil {
		utils.ShowError(fmt.Sprintf("Failed to clear face database after %d files", n), err, nil)
		return err
	}
	return nil
}

// clearImages removes the image files in dir and leaves anything else alone.
// It returns how many files were removed.
func clearImages(dir string) (int, error) {
	names, err := utils.ListImages(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for i, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return i, err
		}
	}
	return len(names), nil
}
