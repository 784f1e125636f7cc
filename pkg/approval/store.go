package approval

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists approval requests as a JSON file so prior decisions are
// still honored after a restart.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads all persisted requests. A missing file is an empty store, not
// an error.
func (s *Store) Load() ([]*Request, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var requests []*Request
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// Save writes the full request set, sorted by creation time so the file is
// stable and diffable. A write failure is logged rather than propagated;
// the in-memory state stays authoritative for the running process.
func (s *Store) Save(requests []*Request) {
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})

	data, err := json.MarshalIndent(requests, "", "  ")
	if err != nil {
		slog.Error("Failed to encode approval state", "error", err)
		return
	}

	if dir := filepath.Dir(s.path); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		slog.Error("Failed to save approval state", "path", s.path, "error", err)
	}
}
