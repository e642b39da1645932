package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath picks the config file: an explicit --config path (with a
// leading ~ expanded), then $XDG_CONFIG_HOME/murmur/config.yaml, then
// ~/.config/murmur/config.yaml.
func ResolvePath(explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" && explicit != "~" && !strings.HasPrefix(explicit, "~/") {
		return explicit, nil
	}
	if explicit == "" {
		if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
			return filepath.Join(xdg, "murmur", "config.yaml"), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if explicit != "" {
		return filepath.Join(home, strings.TrimPrefix(explicit, "~")), nil
	}
	return filepath.Join(home, ".config", "murmur", "config.yaml"), nil
}
