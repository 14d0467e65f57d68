package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var tableHeader = []string{"APPID", "STATUS", "NAME", "SIZE", "MODIFIED", "PATH", "FLAGS"}

// CSVFormatter formats output as comma-separated values with proper quoting.
// Sizes are raw byte counts so the output sorts numerically.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(tableHeader); err != nil {
		return err
	}

	for _, e := range r.Entries {
		row := []string{
			e.AppID.String(),
			statusLabel(e),
			e.Name,
			strconv.FormatInt(e.Prefix.Size, 10),
			e.Prefix.ModTime.UTC().Format(time.RFC3339),
			e.Prefix.Path,
			flagsLabel(e),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

// Ensure CSVFormatter implements Formatter.
var _ Formatter = (*CSVFormatter)(nil)

// MarkdownFormatter formats output as a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString("| APPID | STATUS | NAME | PATH |\n")
	w.WriteString("|------:|--------|------|------|\n")

	for _, e := range r.Entries {
		fmt.Fprintf(w, "| %d | %s | %s | %s |\n",
			e.AppID, statusLabel(e), escapeMarkdownPipe(e.Name), escapeMarkdownPipe(e.Prefix.Path))
	}

	return nil
}

// escapeMarkdownPipe escapes pipe characters in a string for Markdown tables.
func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

// Ensure MarkdownFormatter implements Formatter.
var _ Formatter = (*MarkdownFormatter)(nil)
