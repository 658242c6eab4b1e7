// package formatter exports batch summaries and audit reports to CSV, Markdown, plain text and JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/iasync/internal/shared"
	"github.com/desertthunder/iasync/internal/tasks"
)

// Format names an export format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names and their common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// Export renders a summary in the requested format.
func Export(summary *tasks.Summary, format Format) ([]byte, error) {
	if summary == nil {
		return nil, fmt.Errorf("%w: nil summary", shared.ErrMissingArgument)
	}

	switch format {
	case FormatMarkdown:
		return ExportToMarkdown(summary)
	case FormatCSV:
		return ExportToCSV(summary)
	case FormatJSON:
		return json.MarshalIndent(summary, "", "  ")
	default:
		return ExportToText(summary)
	}
}

// ExportToCSV writes one row per field attempt with columns:
// Identifier, Field, Value, State, Reason, Attempts, Error
func ExportToCSV(summary *tasks.Summary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Identifier", "Field", "Value", "State", "Reason", "Attempts", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range summary.Results {
		if len(item.Fields) == 0 {
			record := []string{item.Identifier, "", "", "", "", "0", item.Message}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
			continue
		}
		for _, f := range item.Fields {
			record := []string{
				item.Identifier,
				f.Field,
				f.Value,
				f.State.String(),
				string(f.Reason),
				strconv.Itoa(len(f.Attempts)),
				f.Error,
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the totals followed by a table of items and a section per failure.
func ExportToMarkdown(summary *tasks.Summary) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Batch %s\n\n", summary.BatchID))
	buf.WriteString(fmt.Sprintf("**Items**: %d (%d succeeded, %d failed)\n", summary.Total, summary.SuccessCount, summary.FailureCount))
	buf.WriteString(fmt.Sprintf("**Fields updated**: %d\n", summary.TotalUpdated))
	buf.WriteString(fmt.Sprintf("**Fields skipped**: %d (%d unchanged, %d no-op)\n", summary.TotalSkipped, summary.SkippedUnchanged, summary.SkippedNoop))
	if summary.FullySkippedItems > 0 {
		buf.WriteString(fmt.Sprintf("**Items with nothing to change**: %d\n", summary.FullySkippedItems))
	}
	if d := summary.Duration(); d > 0 {
		buf.WriteString(fmt.Sprintf("**Duration**: %s\n", d.Round(time.Millisecond)))
	}

	buf.WriteString("\n## Items\n\n")
	buf.WriteString("| Identifier | Result | Updated | Skipped | Message |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for _, item := range summary.Results {
		buf.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %s |\n",
			escapeCell(item.Identifier), outcome(item), item.Updated, item.Skipped, escapeCell(item.Message)))
	}

	var failures []*tasks.ItemResult
	for _, item := range summary.Results {
		if !item.Success || item.Failed > 0 {
			failures = append(failures, item)
		}
	}
	if len(failures) > 0 {
		buf.WriteString("\n## Failures\n")
		for _, item := range failures {
			buf.WriteString(fmt.Sprintf("\n### %s\n\n", item.Identifier))
			for _, f := range item.Fields {
				if f.Error == "" {
					continue
				}
				buf.WriteString(fmt.Sprintf("- `%s`: %s (%s)\n", f.Field, f.Error, f.State))
			}
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders one line per item under a totals header.
func ExportToText(summary *tasks.Summary) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Batch: %s\n", summary.BatchID))
	buf.WriteString(fmt.Sprintf("Items: %d succeeded, %d failed of %d\n", summary.SuccessCount, summary.FailureCount, summary.Total))
	buf.WriteString(fmt.Sprintf("Fields: %d updated, %d skipped\n\n", summary.TotalUpdated, summary.TotalSkipped))

	for i, item := range summary.Results {
		buf.WriteString(fmt.Sprintf("%d. [%s] %s: %s\n", i+1, outcome(item), item.Identifier, item.Message))
	}

	return buf.Bytes(), nil
}

// ExportAudit renders date mismatches as CSV with columns:
// Identifier, Title, IdentifierDate, TitleDate, MetadataDate, Suggested
func ExportAudit(mismatches []tasks.Mismatch) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Identifier", "Title", "IdentifierDate", "TitleDate", "MetadataDate", "Suggested"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, m := range mismatches {
		if err := writer.Write([]string{m.Identifier, m.Title, m.IdentifierDate, m.TitleDate, m.MetadataDate, m.Suggested}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteExport renders a summary and writes it to path.
//
// Defaults to {batchID}_summary with the format's extension.
func WriteExport(summary *tasks.Summary, format Format, path string) (string, error) {
	data, err := Export(summary, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if path == "" {
		path = summary.BatchID + "_summary" + format.Extension()
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

func outcome(item *tasks.ItemResult) string {
	switch {
	case item.Aborted:
		return "aborted"
	case !item.Success:
		return "failed"
	case item.Updated == 0 && item.Skipped > 0:
		return "skipped"
	default:
		return "ok"
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
