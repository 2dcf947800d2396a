package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/enroll/internal/catalog"
	"github.com/andresmejia3/enroll/internal/utils"
	"github.com/spf13/cobra"
)

type checkOptions struct {
	Database  string
	Blacklist string
	Tolerance float64
}

var checkOpts checkOptions

var checkCmd = &cobra.Command{
	Use:   "check <image_path>",
	Short: "Report whether an image matches the blacklist or the face database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		override(cmd, "database", &cfg.DatabaseDir, checkOpts.Database)
		override(cmd, "blacklist", &cfg.BlacklistDir, checkOpts.Blacklist)
		override(cmd, "tolerance", &cfg.Tolerance, checkOpts.Tolerance)
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runCheck(cmd.Context(), args[0])
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkOpts.Database, "database", "o", "stored-faces", "Folder holding enrolled face crops")
	checkCmd.Flags().StringVarP(&checkOpts.Blacklist, "blacklist", "b", "black_listed", "Folder of blacklisted faces")
	checkCmd.Flags().Float64VarP(&checkOpts.Tolerance, "tolerance", "t", catalog.DefaultTolerance, "Match tolerance (lower is stricter)")
	rootCmd.AddCommand(checkCmd)
}

// checkReport is what a dry-run ingestion of one image would find.
type checkReport struct {
	Faces     int
	Blacklist string // first matching blacklist label
	Database  string // first matching database label
}

func runCheck(ctx context.Context, imagePath string) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
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

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	report, vec, err := checkImage(ctx, sup, imgData, accepted, blacklist, cfg.Tolerance)
	if err != nil {
		utils.ShowError("Face analysis failed", err, sup.Cmd())
		return err
	}
	printCheck(os.Stdout, report)

	if DB != nil && vec != nil {
		fmt.Fprintln(os.Stderr, "🗄️  Searching journal...")
		label, dist, err := DB.FindClosestFace(ctx, vec, cfg.Tolerance)
		if err != nil {
			utils.ShowError("Journal search failed", err, nil)
			return err
		}
		if label == "" {
			fmt.Println("🗄️  Journal: no enrolled face within tolerance.")
		} else {
			fmt.Printf("🗄️  Journal: closest enrolled face %s (distance %.3f)\n", label, dist)
		}
	}
	return nil
}

// checkImage screens the first face in data against both catalogs without
// mutating anything. It returns that face's encoding, or nil when none was found.
func checkImage(ctx context.Context, ext catalog.Extractor, data []byte, accepted, blacklist *catalog.Catalog, tolerance float64) (checkReport, []float64, error) {
	faces, err := ext.Extract(ctx, data)
	if err != nil {
		return checkReport{}, nil, err
	}
	report := checkReport{Faces: len(faces)}
	if len(faces) == 0 {
		return report, nil, nil
	}

	vec := faces[0].Vec
	if label, ok := blacklist.Matches(vec, tolerance); ok {
		report.Blacklist = label
	}
	if label, ok := accepted.Matches(vec, tolerance); ok {
		report.Database = label
	}
	return report, vec, nil
}

func printCheck(w io.Writer, r checkReport) {
	if r.Faces == 0 {
		fmt.Fprintln(w, "❌ No faces detected in the provided image.")
		return
	}
	if r.Faces > 1 {
		fmt.Fprintf(w, "⚠️  Multiple faces detected (%d). Using the first face.\n", r.Faces)
	}
	switch {
	case r.Blacklist != "":
		fmt.Fprintf(w, "🚨 BLACKLISTED: matches %s\n", r.Blacklist)
	case r.Database != "":
		fmt.Fprintf(w, "✅ Already enrolled: matches %s\n", r.Database)
	default:
		fmt.Fprintln(w, "🆕 New face: would be added to the database.")
	}
}
