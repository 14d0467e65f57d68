// Package journal keeps a durable record of scan passes and deletion
// requests. The core never deletes prefixes itself; a deletion request is
// written here for an external, confirmed operation to act on.
package journal

import (
	"time"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// OperationType represents the type of operation.
type OperationType string

const (
	// OpScan represents a completed scan pass.
	OpScan OperationType = "scan"
	// OpDeleteRequest represents a request to delete a prefix.
	OpDeleteRequest OperationType = "delete-request"
)

// Entry represents a single journal entry.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Operation OperationType  `json:"operation"`
	Scan      *ScanSummary   `json:"scan,omitempty"`
	Request   *DeleteRequest `json:"request,omitempty"`
}

// ScanSummary contains the counts of one scan pass.
type ScanSummary struct {
	Libraries   int           `json:"libraries"`
	Entries     int           `json:"entries"`
	Installed   int           `json:"installed"`
	Orphaned    int           `json:"orphaned"`
	Marked      int           `json:"manually_marked"`
	Duplicates  int           `json:"duplicates"`
	Diagnostics int           `json:"diagnostics"`
	Elapsed     time.Duration `json:"elapsed"`
}

// DeleteRequest describes the prefix directories a user asked to remove.
type DeleteRequest struct {
	AppID  types.AppID  `json:"appid"`
	Name   string       `json:"name"`
	Status types.Status `json:"status"`

	// Paths lists the primary prefix first, then any duplicates.
	Paths []string `json:"paths"`

	// Bytes is the combined size, or -1 when it was not computed.
	Bytes int64 `json:"bytes"`

	// NonSteam warns that the prefix belongs to a shortcut whose game
	// files live outside any Steam library.
	NonSteam bool `json:"non_steam,omitempty"`

	// Installed warns that the game is still installed.
	Installed bool `json:"installed,omitempty"`
}

// SummarizeScan derives a ScanSummary from a scan result.
func SummarizeScan(r *types.ScanResult) ScanSummary {
	s := ScanSummary{
		Libraries:   len(r.Libraries),
		Entries:     len(r.Entries),
		Installed:   r.Count(types.StatusInstalled),
		Orphaned:    r.Count(types.StatusOrphaned),
		Marked:      r.Count(types.StatusManuallyMarked),
		Diagnostics: len(r.Diagnostics),
		Elapsed:     r.Elapsed,
	}
	for _, e := range r.Entries {
		if e.HasDuplicates() {
			s.Duplicates++
		}
	}
	return s
}

// NewDeleteRequest builds a request for an entry.
func NewDeleteRequest(e types.ReconciledEntry) DeleteRequest {
	req := DeleteRequest{
		AppID:     e.AppID,
		Name:      e.Name,
		Status:    e.Status,
		NonSteam:  e.NonSteam,
		Installed: e.Derived == types.StatusInstalled,
		Bytes:     -1,
	}
	sized := true
	var total int64
	for _, p := range append([]types.PrefixRecord{e.Prefix}, e.Duplicates...) {
		req.Paths = append(req.Paths, p.Path)
		if p.Size < 0 {
			sized = false
		}
		total += p.Size
	}
	if sized {
		req.Bytes = total
	}
	return req
}
