package types

import (
	"errors"
	"fmt"
	"io/fs"
)

// Error sentinels for the non-fatal failure classes of a scan pass.
// Parse failures are reported by the vdf package as *vdf.ParseError.
var (
	ErrAccess       = errors.New("access error")
	ErrNetwork      = errors.New("network error")
	ErrStoreCorrupt = errors.New("store corrupt")
	ErrNotFound     = errors.New("not found")
)

// DiagnosticKind classifies a non-fatal diagnostic.
type DiagnosticKind string

// Diagnostic kinds.
const (
	KindParse   DiagnosticKind = "parse"
	KindAccess  DiagnosticKind = "access"
	KindNetwork DiagnosticKind = "network"
	KindStore   DiagnosticKind = "store"
)

// Diagnostic is an isolated failure reported alongside scan results.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Path    string         `json:"path,omitempty"`
	AppID   AppID          `json:"appid,omitempty"`
	Message string         `json:"message"`
}

// String returns a one-line description of the diagnostic.
func (d Diagnostic) String() string {
	switch {
	case d.Path != "":
		return fmt.Sprintf("%s: %s: %s", d.Kind, d.Path, d.Message)
	case d.AppID != 0:
		return fmt.Sprintf("%s: app %d: %s", d.Kind, d.AppID, d.Message)
	default:
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
}

// NewDiagnostic builds a diagnostic for a path.
func NewDiagnostic(kind DiagnosticKind, path string, err error) Diagnostic {
	return Diagnostic{Kind: kind, Path: path, Message: err.Error()}
}

// ClassifyFSError wraps permission and missing-path errors with ErrAccess.
// Other errors are returned unchanged.
func ClassifyFSError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrAccess, err)
	}
	return err
}
