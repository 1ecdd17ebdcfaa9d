package config

import (
	"os"
	"path/filepath"
)

// CtxPath returns the root directory for contextualize data.
// It uses $CTX_PATH if set, otherwise the current working directory,
// so a project keeps its concepts and task logs next to its sources.
func CtxPath() string {
	if v := os.Getenv("CTX_PATH"); v != "" {
		return v
	}
	return "."
}

// ConfigPath returns the path to the contextualize config file.
func ConfigPath() string {
	return filepath.Join(CtxPath(), "config.jsonc")
}
