package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformConfigDir returns the platform-specific config directory, or the
// CRYPTOSERVICES_CONFIG_DIR override.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/cryptoservices/
//   - Linux:   $XDG_CONFIG_HOME/cryptoservices/ or ~/.config/cryptoservices/
//   - Windows: %APPDATA%\cryptoservices\
func PlatformConfigDir() string {
	if dir := os.Getenv("CRYPTOSERVICES_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "cryptoservices")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "cryptoservices")
		}
		return filepath.Join(home, "AppData", "Roaming", "cryptoservices")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "cryptoservices")
		}
		return filepath.Join(home, ".config", "cryptoservices")
	}
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory, then the config directory,
// for config.<format>. It returns "" if none is found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func defaultHWRNGPath() string {
	if runtime.GOOS == "linux" {
		return "/dev/hwrng"
	}
	return ""
}
