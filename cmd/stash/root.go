package main

import (
	"fmt"

	"github.com/hyperengineering/stash"
	"github.com/hyperengineering/stash/internal/auth"
	"github.com/hyperengineering/stash/internal/sheets"
	"github.com/spf13/cobra"
)

var (
	cfgDBPath     string
	cfgSheetsURL  string
	cfgSheetTitle string
	cfgToken      string
	cfgTokenURL   string
	cfgDebug      bool
	outputJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "stash",
	Short: "Stash - offline-first article manager",
	Long: `Stash saves articles locally and keeps them synchronized with a
remote spreadsheet-backed store.

All operations work offline; local changes queue up and flow to the
remote store on the next sync.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to local article database (default: ~/.stash/stash.db)")
	rootCmd.PersistentFlags().StringVar(&cfgSheetsURL, "sheets-url", "", "Base URL of the remote tabular store")
	rootCmd.PersistentFlags().StringVar(&cfgSheetTitle, "sheet-title", "", "Spreadsheet title (default: Stash Articles)")
	rootCmd.PersistentFlags().StringVar(&cfgToken, "token", "", "Static bearer token for the remote store")
	rootCmd.PersistentFlags().StringVar(&cfgTokenURL, "token-url", "", "Token exchange endpoint for redirect auth")
	rootCmd.PersistentFlags().BoolVar(&cfgDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func loadConfig() stash.Config {
	cfg := stash.ConfigFromEnv()

	// Flags win over environment
	if cfgDBPath != "" {
		cfg.DBPath = cfgDBPath
	}
	if cfgSheetsURL != "" {
		cfg.SheetsURL = cfgSheetsURL
	}
	if cfgSheetTitle != "" {
		cfg.SpreadsheetTitle = cfgSheetTitle
	}
	if cfgToken != "" {
		cfg.Token = cfgToken
	}
	if cfgTokenURL != "" {
		cfg.TokenURL = cfgTokenURL
	}
	if cfgDebug {
		cfg.Debug = true
	}

	return cfg.WithDefaults()
}

// newClient wires the remote storage and auth provider into a client.
// When no sheets URL is configured the client runs offline-only.
func newClient() (*stash.Client, error) {
	cfg := loadConfig()

	var (
		storage  stash.SpreadsheetStorage
		provider stash.AuthProvider
	)

	if !cfg.IsOffline() {
		log, err := stash.NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
		if err != nil {
			return nil, fmt.Errorf("debug logger: %w", err)
		}

		if cfg.Token != "" {
			provider = auth.NewStaticProvider(cfg.Token)
		} else {
			provider = auth.NewProvider(cfg.TokenURL, cfg.CredentialPath, log)
		}
		storage = sheets.NewClient(cfg.SheetsURL, cfg.SpreadsheetTitle, provider, log)
	}

	client, err := stash.New(cfg, storage, provider)
	if err != nil {
		return nil, fmt.Errorf("initialize client: %w", err)
	}
	return client, nil
}
