package telegram

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roster is an optional local map of participant ids to display names. It
// answers name lookups without a chat member call, and keeps names stable for
// people who left the venue.
type Roster struct {
	names map[int64]string
}

type rosterFile struct {
	Participants []rosterEntry `yaml:"participants"`
}

type rosterEntry struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// LoadRoster reads the roster YAML. A missing path yields an empty roster,
// not an error.
func LoadRoster(path string) (*Roster, error) {
	roster := &Roster{names: map[int64]string{}}
	path = strings.TrimSpace(path)
	if path == "" {
		return roster, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return roster, nil
		}
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	for _, entry := range file.Participants {
		name := strings.TrimSpace(entry.Name)
		if entry.ID == 0 || name == "" {
			continue
		}
		roster.names[entry.ID] = name
	}
	return roster, nil
}

func (r *Roster) Name(participantID int64) (string, bool) {
	if r == nil {
		return "", false
	}
	name, ok := r.names[participantID]
	return name, ok
}

func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
