package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// PlainFormatter formats output as an aligned table without colors,
// suitable for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, "APPID\tSTATUS\tSIZE\tNAME\tPATH"); err != nil {
		return err
	}
	for _, e := range r.Entries {
		_, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.AppID, statusLabel(e), types.FormatSize(e.Prefix.Size), e.Name, e.Prefix.Path)
		if err != nil {
			return err
		}
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
