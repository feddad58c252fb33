package output

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"fleetops/internal/core/domain"
)

// TableWriter renders a report as a plain aligned table. It is the format for
// cron mails and logs, where pterm's escape codes are noise.
type TableWriter struct {
	w io.Writer
}

// NewTableWriter creates a writer emitting to w.
func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{w: w}
}

// Write renders the report, one row per target sorted by name.
func (t *TableWriter) Write(report domain.BatchReport) error {
	results := make([]domain.OperationResult, len(report.Results))
	copy(results, report.Results)
	sort.Slice(results, func(i, j int) bool {
		return results[i].TargetName < results[j].TargetName
	})

	tw := tabwriter.NewWriter(t.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATUS\tMESSAGE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.TargetName, resultStatus(r), r.Message)
	}
	fmt.Fprintf(tw, "\nTOTAL\t%d\tok=%d failed=%d\n", report.Total, report.Succeeded, report.Failed)
	return tw.Flush()
}

// resultStatus picks the status cell for a result: the classified state when
// there is one, otherwise success or the error kind.
func resultStatus(r domain.OperationResult) string {
	if r.Status.State != "" && r.Status.State != domain.StateUnknown {
		return r.Status.String()
	}
	if r.Success {
		return "success"
	}
	return string(r.ErrorKind)
}
