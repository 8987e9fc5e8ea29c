package conductor

import (
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ParseCommand attempts to parse JSON or YAML into a ParsedCommand. Commands
// without an explicit id get a generated one.
func ParseCommand(data []byte) (ParsedCommand, error) {
	var cmd ParsedCommand
	if err := yaml.Unmarshal(data, &cmd); err != nil {
		// yaml can handle JSON too, so a single attempt is fine
		return cmd, err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	return cmd, cmd.Validate()
}

// LoadCommandFile reads and parses a command definition from disk.
func LoadCommandFile(path string) (ParsedCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParsedCommand{}, err
	}
	return ParseCommand(data)
}
