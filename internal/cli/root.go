// Package cli holds the snapseek commands.
package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"snapseek/internal/config"
	"snapseek/internal/history"
	"snapseek/internal/pipeline"
)

var (
	flagConfig      string
	flagDebug       bool
	flagDownloadDir string
)

var rootCmd = &cobra.Command{
	Use:           "snapseek",
	Short:         "Hydrate lazy images in a browser tab and save them as PNG, JPG or GIF",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDownloadDir, "download-dir", "", "directory converted images are saved to")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig() (*config.Config, string, error) {
	cfg, used, err := config.Load(flagConfig)
	if err != nil {
		return nil, "", err
	}
	if flagDebug {
		cfg.Debug = true
	}
	if flagDownloadDir != "" {
		cfg.DownloadDir = flagDownloadDir
	}
	return cfg, used, nil
}

func logger() *log.Logger { return log.Default() }

// openHistory opens the store, creating its directory.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return history.Open(cfg.HistoryPath, cfg.HistoryLimit)
}

// newPipeline builds the download pipeline. The directory is resolved per
// download so a changed config takes effect without a restart.
func newPipeline(cfg *config.Config, hist pipeline.Appender, cookies pipeline.CookieSource) *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		Dir:       cfg.ResolveDownloadDir,
		History:   hist,
		Cookies:   cookies,
		SitesDir:  cfg.SitesDir,
		UserAgent: cfg.Browser.UserAgent,
		Logger:    logger(),
	})
}
