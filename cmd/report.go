package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/andresmejia3/enroll/internal/ingest"
)

// printAlert is the console banner for a blacklist hit.
func printAlert(w io.Writer, res ingest.Result) {
	fmt.Fprintf(w, "\n🚨🚨🚨 BLACKLIST ALERT 🚨🚨🚨\n")
	fmt.Fprintf(w, "   %s matches blacklisted file %s\n", res.Filename, res.MatchedLabel)
	fmt.Fprintf(w, "   at %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
}

// printSummary prints the per-outcome counts of a run and the final database size.
func printSummary(w io.Writer, title string, stats ingest.Stats, databaseSize int) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 %s\n", title)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	for _, o := range ingest.Outcomes {
		fmt.Fprintf(w, "   %-22s %d\n", o.String(), stats[o])
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "🖼️  Images Evaluated:     %d\n", stats.Total())
	fmt.Fprintf(w, "👤 Faces In Database:    %d\n", databaseSize)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}
