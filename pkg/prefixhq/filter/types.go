// Package filter provides filtering, sorting, and limiting of reconciled
// entries for display. It supports filtering by status, name, size, age
// and origin, with configurable sorting and limits.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// SortField specifies the field to sort entries by.
type SortField int

const (
	// SortAppID sorts entries by numeric AppID.
	SortAppID SortField = iota
	// SortName sorts entries by display name, case-insensitively.
	SortName
	// SortSize sorts entries by prefix disk usage.
	SortSize
	// SortModified sorts entries by prefix modification time.
	SortModified
)

// Sort field string constants.
const (
	sortFieldAppID    = "appid"
	sortFieldName     = "name"
	sortFieldSize     = "size"
	sortFieldModified = "modified"
)

// String returns the string representation of the sort field.
func (s SortField) String() string {
	switch s {
	case SortAppID:
		return sortFieldAppID
	case SortName:
		return sortFieldName
	case SortSize:
		return sortFieldSize
	case SortModified:
		return sortFieldModified
	default:
		return sortFieldAppID
	}
}

// ErrInvalidSortField indicates that the sort field string could not be parsed.
var ErrInvalidSortField = errors.New("invalid sort field")

// ErrInvalidStatus indicates that the status string could not be parsed.
var ErrInvalidStatus = errors.New("invalid status")

// ParseSortField parses a string into a SortField.
// Valid values are "appid", "name", "size", and "modified" (case-insensitive).
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(s) {
	case sortFieldAppID, "id":
		return SortAppID, nil
	case sortFieldName:
		return SortName, nil
	case sortFieldSize:
		return SortSize, nil
	case sortFieldModified, "age", "mtime":
		return SortModified, nil
	default:
		return SortAppID, fmt.Errorf("%w: %q", ErrInvalidSortField, s)
	}
}

// ParseStatus parses a status filter value. "marked" is accepted as a short
// form of manually_marked.
func ParseStatus(s string) (types.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(types.StatusInstalled):
		return types.StatusInstalled, nil
	case string(types.StatusOrphaned):
		return types.StatusOrphaned, nil
	case string(types.StatusManuallyMarked), "marked", "manual":
		return types.StatusManuallyMarked, nil
	default:
		return "", fmt.Errorf("%w: %q (want installed, orphaned or marked)", ErrInvalidStatus, s)
	}
}
