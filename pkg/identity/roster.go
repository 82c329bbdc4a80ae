package identity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterFile is the on-disk shape of a roster.yaml supplied to the CLI. The
// caller entry names which record the assistant acts on behalf of; references
// carry the channel each person entered the conversation through.
type RosterFile struct {
	Caller     UserRecord   `yaml:"caller"`
	Users      []UserRecord `yaml:"users"`
	References []Reference  `yaml:"references,omitempty"`
}

// LoadRoster reads and validates a roster file.
func LoadRoster(path string) (*RosterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var roster RosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	if roster.Caller.ID == 0 {
		return nil, fmt.Errorf("roster file %s: caller.id is required", path)
	}
	if roster.Caller.TimeZone == "" {
		return nil, fmt.Errorf("roster file %s: caller.timeZone is required", path)
	}

	seen := make(map[int]bool, len(roster.Users))
	for _, u := range roster.Users {
		if u.ID == 0 {
			return nil, fmt.Errorf("roster file %s: user %q has no id", path, u.Username)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("roster file %s: duplicate user id %d", path, u.ID)
		}
		seen[u.ID] = true
	}

	for i, ref := range roster.References {
		if ref.ID == 0 && ref.Username == "" && ref.Email == "" {
			return nil, fmt.Errorf("roster file %s: reference %d carries no id, username, or email", path, i)
		}
		if ref.Type == "" {
			roster.References[i].Type = RefOther
		}
	}

	return &roster, nil
}
