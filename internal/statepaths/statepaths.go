package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	TaskStateFilename = "task_state.json"
	JournalFilename   = "dispatch.db"
)

// StateDir resolves the durable state directory from config, defaulting under
// the user's home directory.
func StateDir() string {
	dir := strings.TrimSpace(viper.GetString("file_state_dir"))
	if dir == "" {
		dir = "~/.dispatchbot/state"
	}
	return expandHomePath(dir)
}

func TaskStatePath() string {
	return filepath.Join(StateDir(), TaskStateFilename)
}

func JournalPath() string {
	return filepath.Join(StateDir(), JournalFilename)
}

func expandHomePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Clean(path)
}
