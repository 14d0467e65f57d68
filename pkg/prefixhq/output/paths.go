package output

import (
	"bytes"
)

// PathsFormatter writes one prefix path per line, followed by the paths of
// any duplicates. Useful for piping into du or a file manager.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	return writePaths(w, r, '\n')
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
}

// Ensure PathsFormatter implements Formatter.
var _ Formatter = (*PathsFormatter)(nil)

// NullFormatter writes prefix paths separated by null bytes, for xargs -0.
type NullFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *NullFormatter) Format(w *bytes.Buffer, r *Result) error {
	return writePaths(w, r, 0)
}

func writePaths(w *bytes.Buffer, r *Result, sep byte) error {
	for _, e := range r.Entries {
		w.WriteString(e.Prefix.Path)
		w.WriteByte(sep)
		for _, d := range e.Duplicates {
			w.WriteString(d.Path)
			w.WriteByte(sep)
		}
	}
	return nil
}

func init() {
	Register("null", func() Formatter {
		return &NullFormatter{}
	})
}

// Ensure NullFormatter implements Formatter.
var _ Formatter = (*NullFormatter)(nil)
