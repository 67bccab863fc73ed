package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/fsval/pkg/fsval/config"
	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initializeLogging is the PersistentPreRunE hook. It loads the config,
// creates the fsval directories and starts logging.
func initializeLogging(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(config.WithConfigFile(cfgFile))
	if err != nil {
		return err
	}
	cfg = loaded

	if cmd != nil {
		if dirs, err := cmd.Flags().GetStringSlice("manifest-dir"); err == nil && len(dirs) > 0 {
			cfg.ManifestDirs = append(dirs, cfg.ManifestDirs...)
		}
	}

	if err := ensureDirectories(); err != nil {
		return err
	}

	logCfg, err := cfg.ToLogging(viper.GetString("log_level"))
	if err != nil {
		return err
	}
	if path := viper.GetString("log_file"); path != "" {
		logCfg.Path = path
	}
	if getVerbose() {
		logCfg.Level = "debug"
	}

	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	printVerbose("Config file: %s", displayPath(cfg.File))
	return nil
}

// ensureDirectories creates the config, data and state directories.
func ensureDirectories() error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{configDir, config.ManifestDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func displayPath(p string) string {
	if p == "" {
		return "(none, using defaults)"
	}
	return p
}
