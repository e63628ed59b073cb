package stash

import (
	"os"

	"github.com/hyperengineering/stash/internal/store"
)

// Config configures the Stash client.
type Config struct {
	// DBPath is the path to the local SQLite database.
	// If empty, resolved via STASH_DB_PATH env then ~/.stash/stash.db.
	DBPath string

	// SheetsURL is the base URL of the remote tabular store API.
	// If empty, the client operates in offline-only mode.
	SheetsURL string

	// SpreadsheetTitle names the backing spreadsheet, found or created on
	// first sync. Defaults to "Stash Articles".
	SpreadsheetTitle string

	// Token is a static bearer token. When set, the redirect-based auth
	// flow is bypassed entirely.
	Token string

	// TokenURL is the endpoint where a redirect credential is exchanged
	// for a bearer token.
	TokenURL string

	// CredentialPath is where the external redirect flow drops its pending
	// credential. Defaults to <store root>/credential.json.
	CredentialPath string

	// Debug enables verbose logging of remote API communications and sync
	// cycle decisions.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:           store.DefaultDBPath(),
		SpreadsheetTitle: "Stash Articles",
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	STASH_DB_PATH     → DBPath
//	STASH_SHEETS_URL  → SheetsURL
//	STASH_SHEET_TITLE → SpreadsheetTitle
//	STASH_TOKEN       → Token
//	STASH_TOKEN_URL   → TokenURL
//	STASH_CREDENTIAL  → CredentialPath
//	STASH_DEBUG       → Debug (any non-empty value enables)
//	STASH_DEBUG_LOG   → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		DBPath:           os.Getenv("STASH_DB_PATH"),
		SheetsURL:        os.Getenv("STASH_SHEETS_URL"),
		SpreadsheetTitle: os.Getenv("STASH_SHEET_TITLE"),
		Token:            os.Getenv("STASH_TOKEN"),
		TokenURL:         os.Getenv("STASH_TOKEN_URL"),
		CredentialPath:   os.Getenv("STASH_CREDENTIAL"),
		Debug:            os.Getenv("STASH_DEBUG") != "",
		DebugLogPath:     os.Getenv("STASH_DEBUG_LOG"),
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return &ValidationError{Field: "DBPath", Message: "required: path to SQLite database"}
	}
	if c.SheetsURL != "" && c.Token == "" && c.TokenURL == "" {
		return &ValidationError{Field: "TokenURL", Message: "required when SheetsURL is set and no static token is given"}
	}
	return nil
}

// IsOffline returns true if the client operates in offline-only mode.
func (c *Config) IsOffline() bool {
	return c.SheetsURL == ""
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	c.DBPath = store.ResolveDBPath(c.DBPath)
	if c.SpreadsheetTitle == "" {
		c.SpreadsheetTitle = defaults.SpreadsheetTitle
	}
	if c.CredentialPath == "" {
		c.CredentialPath = store.DefaultCredentialPath()
	}

	return c
}
