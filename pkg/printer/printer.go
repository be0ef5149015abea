// Package printer renders a finished types.TestResult for the CLI.
package printer

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/loadpulse/loadpulse/pkg/types"
)

// Printer renders result to w.
type Printer interface {
	Print(w io.Writer, result types.TestResult) error
}

// TablePrinter renders an aligned key/value table via text/tabwriter.
type TablePrinter struct{}

// Print writes result's summary and, if present, its metrics as an
// aligned table.
func (TablePrinter) Print(w io.Writer, result types.TestResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "test_id:\t%s\n", result.ID)
	fmt.Fprintf(tw, "kind:\t%s\n", result.Kind)
	fmt.Fprintf(tw, "status:\t%s\n", result.Status)
	if result.Error != "" {
		fmt.Fprintf(tw, "error:\t%s\n", result.Error)
	}

	if result.Metrics != nil {
		m := result.Metrics
		fmt.Fprintf(tw, "requests_completed:\t%d\n", m.RequestsCompleted)
		fmt.Fprintf(tw, "successful_requests:\t%d\n", m.SuccessfulRequests)
		fmt.Fprintf(tw, "failed_requests:\t%d\n", m.FailedRequests)
		fmt.Fprintf(tw, "average_response_time_ms:\t%.2f\n", m.AverageResponseTimeMs)
		fmt.Fprintf(tw, "min_response_time_ms:\t%.2f\n", m.MinResponseTimeMs)
		fmt.Fprintf(tw, "max_response_time_ms:\t%.2f\n", m.MaxResponseTimeMs)
		fmt.Fprintf(tw, "error_rate:\t%.2f%%\n", m.ErrorRate)
		fmt.Fprintf(tw, "requests_per_second:\t%.2f\n", m.RequestsPerSecond)

		codes := make([]int, 0, len(m.StatusCodes))
		for code := range m.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(tw, "status[%d]:\t%d\n", code, m.StatusCodes[code])
		}
	}

	for _, note := range result.Notes {
		fmt.Fprintf(tw, "note:\t%s\n", note)
	}

	return tw.Flush()
}
