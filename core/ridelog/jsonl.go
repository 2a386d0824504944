package ridelog

import (
	"encoding/json"
	"os"
	"sync"
)

// JSONLStore appends entries to a JSONL file, one record per line. It is
// an audit export, not state persistence: the pool and registry are rebuilt
// fresh on every run.
type JSONLStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONLStore creates the file if needed and returns the store.
func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &JSONLStore{path: path}, nil
}

// Append encodes the entry on its own line.
func (s *JSONLStore) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return json.NewEncoder(f).Encode(e)
}

// Close is a no-op; the file is opened per append.
func (s *JSONLStore) Close() error { return nil }
