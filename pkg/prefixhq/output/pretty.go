package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// maxNameWidth truncates long game names in the pretty table.
const maxNameWidth = 40

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct {
	// now is used for relative ages; nil means time.Now.
	now func() time.Time
}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	if !r.SteamFound && len(r.Libraries) == 0 {
		w.WriteString(ErrorBox.Render(ErrorStyle.Bold(true).Render("Steam not found") + "\n" +
			MutedStyle.Render("No native, Flatpak or Snap Steam install was detected.")))
		w.WriteString("\n")
		return nil
	}

	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Diagnostics) > 0 {
		w.WriteString(f.formatDiagnostics(r.Diagnostics))
	}

	return nil
}

// formatHeader builds the header box with scan metadata.
func (f *PrettyFormatter) formatHeader(r *Result) string {
	var lines []string

	libs := make([]string, len(r.Libraries))
	for i, lib := range r.Libraries {
		libs[i] = lib.Path
	}
	lines = append(lines, fmt.Sprintf("%s %s",
		LabelStyle.Render("Libraries:"), ValueStyle.Render(strings.Join(libs, ", "))))

	info := fmt.Sprintf("%s %s", LabelStyle.Render("Scanned:"),
		ValueStyle.Render(fmt.Sprintf("%d prefixes in %s", r.Total, formatDuration(r.Elapsed))))
	lines = append(lines, info)

	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Scan interrupted by user"))
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatTable builds the entry table.
func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Entries) == 0 {
		return MutedStyle.Render("  No prefixes found matching criteria") + "\n"
	}

	now := time.Now
	if f.now != nil {
		now = f.now
	}

	var (
		ids, statuses, names, sizes, ages []string
		wID, wStatus, wName, wSize, wAge  int
	)
	for _, e := range r.Entries {
		id := e.AppID.String()
		status := statusLabel(e)
		name := truncate(e.Name, maxNameWidth)
		size := types.FormatSize(e.Prefix.Size)
		age := humanize.RelTime(e.Prefix.ModTime, now(), "ago", "from now")

		ids, statuses, names = append(ids, id), append(statuses, status), append(names, name)
		sizes, ages = append(sizes, size), append(ages, age)

		wID = max(wID, len(id))
		wStatus = max(wStatus, len(status))
		wName = max(wName, lipgloss.Width(name))
		wSize = max(wSize, len(size))
		wAge = max(wAge, len(age))
	}
	wID, wStatus, wName = max(wID, 5), max(wStatus, 6), max(wName, 4)
	wSize, wAge = max(wSize, 4), max(wAge, 8)

	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-*s  %-*s  %-*s  %*s  %-*s  %s",
		wID, "APPID", wStatus, "STATUS", wName, "NAME", wSize, "SIZE", wAge, "MODIFIED", "PATH")))
	sb.WriteString("\n")

	for i, e := range r.Entries {
		fmt.Fprintf(&sb, "  %s  %s  %s  %s  %s  %s",
			MutedStyle.Render(padRight(ids[i], wID)),
			StatusStyle(e.Status).Render(padRight(statuses[i], wStatus)),
			ValueStyle.Render(padRight(names[i], wName)),
			SizeStyle.Render(padLeft(sizes[i], wSize)),
			MutedStyle.Render(padRight(ages[i], wAge)),
			PathStyle.Render(e.Prefix.Path))
		if flags := flagsLabel(e); flags != "" {
			sb.WriteString(" " + WarningStyle.Render("["+flags+"]"))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatFooter builds the footer box with summary information.
func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Shown:"),
			ValueStyle.Render(fmt.Sprintf("%d/%d", len(r.Entries), r.Total))),
		StatusStyle(types.StatusInstalled).Render(fmt.Sprintf("%d installed", r.Count(types.StatusInstalled))),
		StatusStyle(types.StatusOrphaned).Render(fmt.Sprintf("%d orphaned", r.Count(types.StatusOrphaned))),
		StatusStyle(types.StatusManuallyMarked).Render(fmt.Sprintf("%d marked", r.Count(types.StatusManuallyMarked))),
	}
	if total := r.TotalSize(); total > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Total:"),
			SizeStyle.Render(humanize.IBytes(uint64(total)))))
	}
	parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))

	return FooterBox.Render(strings.Join(parts, "  "))
}

// formatDiagnostics builds a warning block.
func (f *PrettyFormatter) formatDiagnostics(diags []types.Diagnostic) string {
	var sb strings.Builder

	sb.WriteString(WarningStyle.Bold(true).Render(fmt.Sprintf("Warnings (%d):", len(diags))))
	sb.WriteString("\n")

	for _, d := range diags {
		sb.WriteString(WarningStyle.Render("  " + d.String()))
		sb.WriteString("\n")
	}

	return sb.String()
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

// padRight pads a string with spaces on the right to achieve the desired width.
func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// truncate shortens s to width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
