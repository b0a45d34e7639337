package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SaveSnapshot writes every live record to path as a JSON array. The file is
// written to a temp sibling and renamed so readers never observe a partial
// snapshot. Returns the number of records written.
func (s *InMemory) SaveSnapshot(path string) (int, error) {
	s.mu.Lock()
	now := s.now()
	records := make([]*Record, 0, len(s.locks))
	for _, rec := range s.locks {
		if !rec.Expired(now) {
			cp := *rec
			records = append(records, &cp)
		}
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return len(records), nil
}

// LoadSnapshot restores records from a file written by SaveSnapshot,
// skipping any that expired while the process was down. A missing file is
// not an error. Returns the number of records restored.
func (s *InMemory) LoadSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("lock: corrupt snapshot %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, rec := range records {
		if rec.Expired(now) {
			continue
		}
		s.locks[rec.Key().String()] = rec
		s.byToken[rec.Token] = rec.Key().String()
		n++
	}
	return n, nil
}
