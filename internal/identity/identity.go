// Package identity manages the installation markers kept in the agent home:
// a persistent install UUID and the tech-type marker.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	uuidFile     = "uuid.dat"
	techTypeFile = "tech_type.dat"

	// DefaultTechType is reported when no marker file exists
	DefaultTechType = "docker"
)

// UUID returns the install ID stored in <home>/uuid.dat. Existing content is
// returned trimmed and as-is, whatever its format; a new UUID is generated
// and persisted only when the file is missing or blank.
func UUID(home string) (string, error) {
	path := filepath.Join(home, uuidFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", fmt.Errorf("failed to create home directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return id, nil
}

// TechType returns the trimmed content of <home>/tech_type.dat, or
// DefaultTechType when the file is missing, unreadable or empty.
func TechType(home string) string {
	data, err := os.ReadFile(filepath.Join(home, techTypeFile))
	if err != nil {
		return DefaultTechType
	}
	if v := strings.TrimSpace(string(data)); v != "" {
		return v
	}
	return DefaultTechType
}
