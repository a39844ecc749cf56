package tracking

import (
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	defaultStoreDirName  = ".replybot"
	defaultStoreFileName = "tracking.json"
)

// ResolveStorePath resolves the tracking store path, expanding a leading ~
// and falling back to the user home directory when unset.
func ResolveStorePath(storePath string) string {
	trimmed := strings.TrimSpace(storePath)
	if trimmed != "" {
		if strings.HasPrefix(trimmed, "~") {
			if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
				return filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
			}
		}
		return filepath.Clean(trimmed)
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(os.TempDir(), "replybot", defaultStoreFileName)
	}
	return filepath.Join(home, defaultStoreDirName, defaultStoreFileName)
}

// Load reads the tracking state, tolerating missing or corrupt files by
// starting from an empty state. Tracking loss only risks a bounded number of
// duplicate replies, so it is never fatal.
func Load(storePath string) (*State, error) {
	data, err := os.ReadFile(storePath)
	if err != nil {
		return NewState(), nil
	}
	var parsed State
	if err := json5.Unmarshal(data, &parsed); err != nil {
		return NewState(), nil
	}
	parsed.normalize()
	return &parsed, nil
}

// Save writes the tracking state atomically and keeps a .bak copy.
func Save(storePath string, state *State) error {
	if state == nil {
		state = NewState()
	}
	state.normalize()
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return err
	}
	payload, err := json5.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := storePath + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, storePath); err != nil {
		return err
	}
	_ = os.WriteFile(storePath+".bak", payload, 0o644)
	return nil
}
