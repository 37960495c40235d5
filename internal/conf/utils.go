// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/hotspot-detector/geodetect/internal/errors"
)

const appDirName = "geodetect"

// GetDefaultConfigPaths returns the directories searched for config.yaml, in priority order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "windows" {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", appDirName))
		} else {
			paths = append(paths, filepath.Join(homeDir, ".config", appDirName))
		}
	}

	if runtime.GOOS != "windows" {
		paths = append(paths, filepath.Join("/etc", appDirName))
	}

	return paths
}

// FindConfigFile locates the first config.yaml in the default paths.
func FindConfigFile() (string, error) {
	for _, path := range GetDefaultConfigPaths() {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Component("configuration").
		Category(errors.CategoryFileIO).
		Context("operation", "find_config_file").
		Build()
}

// UserConfigPath returns the per-user config.yaml location used by `config init`.
func UserConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get_home_directory").
			Build()
	}
	return filepath.Join(homeDir, ".config", appDirName, "config.yaml"), nil
}

// ResolveTempDir returns the upload parent directory, defaulting under os.TempDir().
func (s *Settings) ResolveTempDir() string {
	if s.Upload.TempDir != "" {
		return os.ExpandEnv(s.Upload.TempDir)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// Address returns the host:port the server listens on.
func (s *Settings) Address() string {
	return s.Server.Host + ":" + s.Server.Port
}
