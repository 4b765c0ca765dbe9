package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Root is the configuration directory.
func Root() string {
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		return filepath.Join(appdata, "snapseek")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "snapseek")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "snapseek")
}

// DataRoot holds the history database.
func DataRoot() string {
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return filepath.Join(local, "snapseek")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "snapseek")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "snapseek")
}

// DefaultPath is the config file location.
func DefaultPath() string {
	return filepath.Join(Root(), "config.yaml")
}

// DefaultDownloadDir is the platform downloads directory: XDG_DOWNLOAD_DIR
// when set, else ~/Downloads.
func DefaultDownloadDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DOWNLOAD_DIR")); xdg != "" {
		return expandHome(xdg)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return os.ExpandEnv(p)
}
