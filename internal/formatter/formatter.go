// package formatter renders submission history as CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
)

const timeLayout = "2006-01-02 15:04:05"

// Report is a page of submission history plus per-status totals.
type Report struct {
	Counts      map[string]int
	Submissions []*models.Submission
	GeneratedAt time.Time
}

// Formats lists the names accepted by [Render].
var Formats = []string{"text", "csv", "markdown"}

// Render converts the report to the named format.
func Render(format string, r Report) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return ToText(r)
	case "csv":
		return ToCSV(r.Submissions)
	case "markdown", "md":
		return ToMarkdown(r)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ToCSV converts submissions to CSV format with columns: ID, Track, Status, Detail, Created
func ToCSV(submissions []*models.Submission) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Track", "Status", "Detail", "Created"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range submissions {
		record := []string{
			s.ID(),
			s.TrackID(),
			s.Status(),
			s.Detail(),
			s.CreatedAt().UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown converts the report to a Markdown document with a totals line and a table.
func ToMarkdown(r Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Submissions\n\n")
	if !r.GeneratedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("_Generated %s_\n\n", r.GeneratedAt.UTC().Format(time.RFC3339)))
	}
	buf.WriteString(fmt.Sprintf("**Totals**: %s\n\n", totals(r.Counts)))

	if len(r.Submissions) == 0 {
		buf.WriteString("No submissions recorded.\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| Created | Status | Track | Detail |\n")
	buf.WriteString("|---|---|---|---|\n")
	for _, s := range r.Submissions {
		buf.WriteString(fmt.Sprintf("| %s | %s | [%s](https://open.spotify.com/track/%s) | %s |\n",
			s.CreatedAt().Local().Format(timeLayout), s.Status(), s.TrackID(), s.TrackID(), escapeCell(s.Detail())))
	}

	return buf.Bytes(), nil
}

// ToText converts the report to plain text format
func ToText(r Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(totals(r.Counts) + "\n\n")
	if len(r.Submissions) == 0 {
		buf.WriteString("No submissions recorded\n")
		return buf.Bytes(), nil
	}

	for _, s := range r.Submissions {
		line := fmt.Sprintf("%s  %-9s  %s", s.CreatedAt().Local().Format(timeLayout), s.Status(), s.TrackID())
		if s.Detail() != "" {
			line += "  " + s.Detail()
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

func totals(counts map[string]int) string {
	parts := make([]string, 0, len(models.Statuses))
	for _, status := range models.Statuses {
		parts = append(parts, fmt.Sprintf("%s: %d", status, counts[status]))
	}
	return strings.Join(parts, "  ")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
