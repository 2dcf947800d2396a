package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/enroll/internal/catalog"
	"github.com/andresmejia3/enroll/internal/crop"
	"github.com/andresmejia3/enroll/internal/ingest"
	"github.com/andresmejia3/enroll/internal/processed"
	"github.com/andresmejia3/enroll/internal/utils"
	"github.com/andresmejia3/enroll/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	Source         string
	Database       string
	Tolerance      float64
	Padding        int
	Aspect         float64
	LogFile        string
	AllowMultiFace bool
}

var buildOpts buildOptions

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a duplicate-free face database from a folder in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyBuildFlags(cmd, &buildOpts)
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runBuild(cmd.Context(), buildOpts.LogFile, buildOpts.AllowMultiFace)
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildOpts.Source, "source", "s", "images", "Folder of input images")
	buildCmd.Flags().StringVarP(&buildOpts.Database, "database", "o", "stored-faces", "Folder to write face crops to")
	buildCmd.Flags().Float64VarP(&buildOpts.Tolerance, "tolerance", "t", catalog.DefaultTolerance, "Match tolerance (lower is stricter)")
	buildCmd.Flags().IntVarP(&buildOpts.Padding, "padding", "p", 50, "Pixels of padding around each face crop")
	buildCmd.Flags().Float64VarP(&buildOpts.Aspect, "aspect", "a", 0.80, "Crop width/height ratio")
	buildCmd.Flags().StringVarP(&buildOpts.LogFile, "log", "l", "", "Processed-files log (off when empty)")
	buildCmd.Flags().BoolVar(&buildOpts.AllowMultiFace, "allow-multi-face", false, "Enroll the first face of group photos instead of skipping them")
	rootCmd.AddCommand(buildCmd)
}

func applyBuildFlags(cmd *cobra.Command, o *buildOptions) {
	override(cmd, "source", &cfg.SourceDir, o.Source)
	override(cmd, "database", &cfg.DatabaseDir, o.Database)
	override(cmd, "tolerance", &cfg.Tolerance, o.Tolerance)
	override(cmd, "padding", &cfg.BuildPadding, o.Padding)
	override(cmd, "aspect", &cfg.AspectRatio, o.Aspect)
}

func runBuild(ctx context.Context, logFile string, allowMultiFace bool) error {
	if _, err := os.Stat(cfg.SourceDir); err != nil {
		utils.ShowError("Unable to access source folder", err, nil)
		return err
	}
	if err := utils.EnsureDirs(cfg.DatabaseDir); err != nil {
		utils.ShowError("Failed to create database folder", err, nil)
		return err
	}

	var seen *processed.Log
	if logFile != "" {
		var err error
		if seen, err = processed.Open(logFile); err != nil {
			utils.ShowError("Failed to read processed log", err, nil)
			return err
		}
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting Face Engine...")
	sup := newSupervisor()
	defer sup.Close()
	if err := sup.Start(ctx); err != nil {
		utils.ShowError("Face engine startup failed", err, sup.Cmd())
		return err
	}

	accepted, err := seedAccepted(ctx, sup, seen, cfg.DatabaseDir)
	if err != nil {
		utils.ShowError("Failed to load face database", err, sup.Cmd())
		return err
	}

	in := &ingest.Ingestor{
		Options: ingest.Options{
			SourceDir:       cfg.SourceDir,
			DatabaseDir:     cfg.DatabaseDir,
			Tolerance:       cfg.Tolerance,
			Crop:            crop.Options{Padding: cfg.BuildPadding, AspectRatio: cfg.AspectRatio},
			RejectMultiFace: !allowMultiFace,
		},
		Extractor: sup,
		Accepted:  accepted,
		Processed: seen,
		Journal:   journal(),
		Logger:    logger,
	}

	err = buildDatabase(ctx, in, newBar(-1, "🔨 Building database"))
	printSummary(os.Stderr, "BUILD SUMMARY", in.Stats(), in.Accepted.Len())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, worker.ErrWorkerCrashed):
		utils.ShowError("Face engine crashed", err, sup.Cmd())
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "⏹️  Build interrupted; rerun with --log to resume where it stopped.")
	default:
		utils.ShowError("Build failed", err, nil)
	}
	return err
}

// seedAccepted returns the catalog a build starts from. Without a processed
// log the build starts empty. With one, it reloads the crops already in
// databaseDir, since the files that produced them are skipped this time.
func seedAccepted(ctx context.Context, ext catalog.Extractor, seen *processed.Log, databaseDir string) (*catalog.Catalog, error) {
	if seen == nil {
		return catalog.New("main"), nil
	}
	bar := newBar(-1, "📂 Loading main")
	defer bar.Finish()
	l := &catalog.Loader{Extractor: ext, Logger: logger, Progress: bar}
	return l.Load(ctx, "main", databaseDir)
}

// buildDatabase runs a single pass over the source listing. With a processed
// log attached, files already in it are skipped.
func buildDatabase(ctx context.Context, in *ingest.Ingestor, bar *progressbar.ProgressBar) error {
	names, err := utils.ListImages(in.SourceDir)
	if err != nil {
		return err
	}
	if in.Processed != nil {
		names = in.Processed.Pending(names)
	}

	bar.ChangeMax(len(names))
	defer bar.Finish()

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := in.Process(ctx, name); err != nil {
			return err
		}
		bar.Add(1)
	}
	return nil
}
