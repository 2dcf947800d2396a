package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/enroll/internal/catalog"
	"github.com/andresmejia3/enroll/internal/crop"
	"github.com/andresmejia3/enroll/internal/ingest"
	"github.com/andresmejia3/enroll/internal/monitor"
	"github.com/andresmejia3/enroll/internal/processed"
	"github.com/andresmejia3/enroll/internal/utils"
	"github.com/spf13/cobra"
)

type monitorOptions struct {
	Source        string
	Database      string
	Blacklist     string
	LogFile       string
	Tolerance     float64
	Padding       int
	Interval      time.Duration
	WorkerTimeout time.Duration
}

var monitorOpts monitorOptions

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a folder and enroll new faces, alerting on blacklisted ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyMonitorFlags(cmd, &monitorOpts)
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runMonitor(cmd.Context())
	},
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorOpts.Source, "source", "s", "images", "Folder to watch for new images")
	monitorCmd.Flags().StringVarP(&monitorOpts.Database, "database", "o", "stored-faces", "Folder holding enrolled face crops")
	monitorCmd.Flags().StringVarP(&monitorOpts.Blacklist, "blacklist", "b", "black_listed", "Folder of blacklisted faces")
	monitorCmd.Flags().StringVarP(&monitorOpts.LogFile, "log", "l", processed.DefaultLogFile, "Processed-files log")
	monitorCmd.Flags().Float64VarP(&monitorOpts.Tolerance, "tolerance", "t", catalog.DefaultTolerance, "Match tolerance (lower is stricter)")
	monitorCmd.Flags().IntVarP(&monitorOpts.Padding, "padding", "p", 30, "Pixels of padding around each face crop")
	monitorCmd.Flags().DurationVarP(&monitorOpts.Interval, "interval", "i", monitor.DefaultInterval, "Sleep between polls when idle")
	monitorCmd.Flags().DurationVar(&monitorOpts.WorkerTimeout, "worker-timeout", time.Minute, "Max time the face engine may spend on one image (0 disables)")
	rootCmd.AddCommand(monitorCmd)
}

func applyMonitorFlags(cmd *cobra.Command, o *monitorOptions) {
	override(cmd, "source", &cfg.SourceDir, o.Source)
	override(cmd, "database", &cfg.DatabaseDir, o.Database)
	override(cmd, "blacklist", &cfg.BlacklistDir, o.Blacklist)
	override(cmd, "log", &cfg.LogFile, o.LogFile)
	override(cmd, "tolerance", &cfg.Tolerance, o.Tolerance)
	override(cmd, "padding", &cfg.MonitorPadding, o.Padding)
	override(cmd, "interval", &cfg.Interval, o.Interval)
	override(cmd, "worker-timeout", &cfg.WorkerTimeout, o.WorkerTimeout)
}

// runMonitor loads both catalogs, then polls until the context is cancelled.
func runMonitor(ctx context.Context) error {
	if err := utils.EnsureDirs(cfg.SourceDir, cfg.DatabaseDir, cfg.BlacklistDir); err != nil {
		utils.ShowError("Failed to create working folders", err, nil)
		return err
	}

	seen, err := processed.Open(cfg.LogFile)
	if err != nil {
		utils.ShowError("Failed to read processed log", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting Face Engine...")
	sup := newSupervisor()
	defer sup.Close()
	if err := sup.Start(ctx); err != nil {
		utils.ShowError("Face engine startup failed", err, sup.Cmd())
		return err
	}

	accepted, blacklist, err := loadCatalogs(ctx, sup, cfg.DatabaseDir, cfg.BlacklistDir)
	if err != nil {
		utils.ShowError("Failed to load face databases", err, sup.Cmd())
		return err
	}
	fmt.Fprintf(os.Stderr, "✅ Database loaded with %d faces, blacklist with %d\n", accepted.Len(), blacklist.Len())

	in := &ingest.Ingestor{
		Options: ingest.Options{
			SourceDir:   cfg.SourceDir,
			DatabaseDir: cfg.DatabaseDir,
			Tolerance:   cfg.Tolerance,
			Crop:        crop.Options{Padding: cfg.MonitorPadding},
		},
		Extractor: sup,
		Accepted:  accepted,
		Blacklist: blacklist,
		Processed: seen,
		Journal:   journal(),
		Logger:    logger,
		OnAlert:   func(res ingest.Result) { printAlert(os.Stderr, res) },
	}

	fmt.Fprintf(os.Stderr, "👁️  Monitoring %s (Ctrl+C to stop)\n", cfg.SourceDir)
	err = monitor.New(in, cfg.Interval, logger).Run(ctx)
	printSummary(os.Stderr, "MONITOR SUMMARY", in.Stats(), accepted.Len())

	if err != nil {
		utils.ShowError("Monitoring stopped", err, sup.Cmd())
		return err
	}
	return nil
}

// loadCatalogs bulk-loads the accepted database and the blacklist. A blacklist
// folder with no usable faces yields an empty catalog, which never matches.
func loadCatalogs(ctx context.Context, ext catalog.Extractor, databaseDir, blacklistDir string) (accepted, blacklist *catalog.Catalog, err error) {
	load := func(name, dir string) (*catalog.Catalog, error) {
		bar := newBar(-1, fmt.Sprintf("📂 Loading %s", name))
		defer bar.Finish()
		l := &catalog.Loader{Extractor: ext, Logger: logger, Progress: bar}
		return l.Load(ctx, name, dir)
	}

	if accepted, err = load("main", databaseDir); err != nil {
		return nil, nil, err
	}
	if blacklist, err = load("blacklist", blacklistDir); err != nil {
		return nil, nil, err
	}
	return accepted, blacklist, nil
}
