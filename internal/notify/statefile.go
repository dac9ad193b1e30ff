package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StateFileName is the file external widgets poll.
const StateFileName = "echo_state.json"

// StateFile mirrors the latest state update to a JSON file.
type StateFile struct {
	path string
	mu   sync.Mutex
	last StateUpdate
}

// NewStateFile writes to dataDir/echo_state.json.
func NewStateFile(dataDir string) *StateFile {
	return &StateFile{path: filepath.Join(dataDir, StateFileName)}
}

// Path returns the file location.
func (f *StateFile) Path() string {
	return f.path
}

// Write replaces the file contents with u. The file is swapped in with a
// rename so readers never see a partial write.
func (f *StateFile) Write(u StateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	f.last = u
	return nil
}

// Last returns the most recently written update.
func (f *StateFile) Last() StateUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// ReadStateFile reads the state file in dataDir.
func ReadStateFile(dataDir string) (*StateUpdate, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, StateFileName))
	if err != nil {
		return nil, err
	}
	var u StateUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &u, nil
}
