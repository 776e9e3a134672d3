// conf/utils.go filesystem helpers for configuration handling
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// GetDefaultConfigPaths returns the default configuration paths for the
// current operating system. The working directory is always searched first so
// a local config.yaml takes precedence over the user and system locations.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	// Fetch the user's home directory.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting home directory: %w", err)
	}

	// Define default paths based on the operating system.
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", "kvmsync"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "kvmsync"),
			"/etc/kvmsync",
		}
	}

	return configPaths, nil
}

// GetBasePath expands and normalizes the given path and makes sure the
// directory exists.
func GetBasePath(path string) string {
	// Expand environment variables in the path.
	expandedPath := os.ExpandEnv(path)

	// Normalize the path to handle any irregularities such as trailing slashes.
	basePath := filepath.Clean(expandedPath)

	// Check if the directory exists.
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		// Attempt to create the directory if it doesn't exist.
		if err := os.MkdirAll(basePath, 0o750); err != nil {
			fmt.Printf("failed to create directory '%s': %v\n", basePath, err)
		}
	}

	return basePath
}
