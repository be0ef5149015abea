package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/loadpulse/loadpulse/pkg/types"
)

func TestTablePrinterIncludesSummaryAndMetrics(t *testing.T) {
	result := types.TestResult{
		ID:     "abc123",
		Kind:   types.KindLoad,
		Status: types.StatusCompleted,
		Metrics: &types.TestMetrics{
			RequestsCompleted:  10,
			SuccessfulRequests: 9,
			FailedRequests:     1,
			ErrorRate:          10,
			StatusCodes:        map[int]int64{200: 9, 500: 1},
		},
	}

	var buf bytes.Buffer
	if err := (TablePrinter{}).Print(&buf, result); err != nil {
		t.Fatalf("Print: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"abc123", "completed", "requests_completed", "status[200]", "status[500]"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestTablePrinterIncludesErrorAndNotes(t *testing.T) {
	result := types.TestResult{
		ID:     "err1",
		Kind:   types.KindAPI,
		Status: types.StatusError,
		Error:  "expectation violated",
		Notes:  []string{"health: expected status 200, got 404"},
	}

	var buf bytes.Buffer
	if err := (TablePrinter{}).Print(&buf, result); err != nil {
		t.Fatalf("Print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "expectation violated") || !strings.Contains(out, "health: expected status 200") {
		t.Errorf("expected error and note to appear, got:\n%s", out)
	}
}
