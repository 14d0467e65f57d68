package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// Journal manages entry files in a directory.
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// New creates a new Journal with the given directory.
// The directory is created on the first write.
func New(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal directory cannot be empty")
	}
	return &Journal{dir: dir, now: time.Now}, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// LogScan records a scan pass and returns the created entry.
func (j *Journal) LogScan(summary ScanSummary) (*Entry, error) {
	return j.log(&Entry{Operation: OpScan, Scan: &summary})
}

// LogDeleteRequest records a deletion request and returns the created entry.
func (j *Journal) LogDeleteRequest(req DeleteRequest) (*Entry, error) {
	if len(req.Paths) == 0 {
		return nil, errors.New("delete request has no paths")
	}
	return j.log(&Entry{Operation: OpDeleteRequest, Request: &req})
}

func (j *Journal) log(entry *Entry) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry.Timestamp = j.now().UTC()
	entry.ID = generateID(entry.Operation, entry.Timestamp)

	if err := j.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to write journal entry: %w", err)
	}
	return entry, nil
}

// writeEntry writes an entry to a JSON file in the journal directory.
func (j *Journal) writeEntry(entry *Entry) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	filePath := filepath.Join(j.dir, entry.ID+".json")
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	// Write atomically using a temp file and rename
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns entries sorted newest first. If limit is 0 or negative, all
// entries are returned. Unreadable files are skipped.
func (j *Journal) List(limit int) ([]Entry, error) {
	return j.list(limit, func(*Entry) bool { return true })
}

// Requests returns deletion requests for id, newest first.
func (j *Journal) Requests(id types.AppID) ([]Entry, error) {
	return j.list(0, func(e *Entry) bool {
		return e.Operation == OpDeleteRequest && e.Request != nil && e.Request.AppID == id
	})
}

func (j *Journal) list(limit int, keep func(*Entry) bool) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := j.readEntryFile(f.Name())
		if err != nil {
			continue
		}
		if keep(entry) {
			entries = append(entries, *entry)
		}
	}

	sort.Slice(entries, func(a, b int) bool {
		if !entries[a].Timestamp.Equal(entries[b].Timestamp) {
			return entries[a].Timestamp.After(entries[b].Timestamp)
		}
		return entries[a].ID > entries[b].ID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get retrieves a specific entry by ID.
func (j *Journal) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}
	if strings.ContainsRune(id, filepath.Separator) {
		return nil, fmt.Errorf("invalid entry ID: %s", id)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.readEntryFile(id + ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("entry not found: %s", id)
	}
	return entry, err
}

func (j *Journal) readEntryFile(filename string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(j.dir, filename))
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Prune removes entries older than retentionDays and returns how many were
// removed. A non-positive retention keeps everything.
func (j *Journal) Prune(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read journal directory: %w", err)
	}

	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := j.readEntryFile(f.Name())
		if err != nil || !entry.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, f.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// generateID creates a unique ID like "scan-2026-06-15T10-30-00-1b4e28ba".
func generateID(op OperationType, ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%s-%s", op, ts.Format("2006-01-02T15-04-05"), suffix)
}
