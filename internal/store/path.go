// Package store provides filesystem helpers for the local article database.
package store

import (
	"os"
	"path/filepath"
)

// DefaultRoot returns the root directory for stash data.
// Defaults to ~/.stash, falls back to ./.stash if home dir unavailable.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".stash")
	}
	return filepath.Join(home, ".stash")
}

// DefaultDBPath returns the default path to the article database file.
func DefaultDBPath() string {
	return filepath.Join(DefaultRoot(), "stash.db")
}

// DefaultCredentialPath returns where the redirect auth flow drops its
// pending credential.
func DefaultCredentialPath() string {
	return filepath.Join(DefaultRoot(), "credential.json")
}

// ResolveDBPath determines the database path based on priority chain:
// explicit > STASH_DB_PATH env > default.
func ResolveDBPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if envPath := os.Getenv("STASH_DB_PATH"); envPath != "" {
		return envPath
	}
	return DefaultDBPath()
}
