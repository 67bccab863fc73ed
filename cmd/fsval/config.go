package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/fsval/pkg/fsval/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage fsval configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/fsval/config.yaml (if set)
  2. ~/.config/fsval/config.yaml

A .env file in the working directory is read first. Environment variables
override config file settings using the FSVAL_ prefix:
  FSVAL_ALLOW_EVAL=1
  FSVAL_DEFAULT_QUERY='data/**'
  FSVAL_SNAPSHOT_EXCLUDE='*.tmp,.cache'
  FSVAL_LOGGING_LEVEL=debug`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources as YAML.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// shownConfig mirrors config.Config with the keys used in config.yaml.
type shownConfig struct {
	AllowEval    bool     `yaml:"allow_eval"`
	DefaultQuery string   `yaml:"default_query"`
	ManifestDirs []string `yaml:"manifest_dirs"`
	Format       string   `yaml:"format"`
	Snapshot     struct {
		IgnoreFile string   `yaml:"ignore_file"`
		Exclude    []string `yaml:"exclude"`
		Workers    int      `yaml:"workers"`
	} `yaml:"snapshot"`
	Watch struct {
		Debounce string `yaml:"debounce"`
	} `yaml:"watch"`
	Logging struct {
		Level    string `yaml:"level"`
		Path     string `yaml:"path"`
		Rotation struct {
			MaxSize    string `yaml:"max_size"`
			MaxAge     int    `yaml:"max_age"`
			MaxBackups int    `yaml:"max_backups"`
			Daily      bool   `yaml:"daily"`
		} `yaml:"rotation"`
		Components map[string]string `yaml:"components,omitempty"`
	} `yaml:"logging"`
}

func showConfig(c *config.Config) shownConfig {
	var s shownConfig
	s.AllowEval = c.AllowEval
	s.DefaultQuery = c.DefaultQuery
	s.ManifestDirs = append([]string{}, c.ManifestDirs...)
	s.Format = c.Format
	s.Snapshot.IgnoreFile = c.Snapshot.IgnoreFile
	s.Snapshot.Exclude = append([]string{}, c.Snapshot.Exclude...)
	s.Snapshot.Workers = c.Snapshot.Workers
	s.Watch.Debounce = c.Watch.Debounce.String()
	s.Logging.Level = c.Logging.Level
	s.Logging.Path = c.Logging.Path
	s.Logging.Rotation.MaxSize = c.Logging.Rotation.MaxSize
	s.Logging.Rotation.MaxAge = c.Logging.Rotation.MaxAge
	s.Logging.Rotation.MaxBackups = c.Logging.Rotation.MaxBackups
	s.Logging.Rotation.Daily = c.Logging.Rotation.Daily
	s.Logging.Components = c.Logging.Components
	return s
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# Config file: %s\n", displayPath(cfg.File))

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(showConfig(cfg)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath, err := config.ConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, _ []string) error {
	configPath, err := config.ConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), configPath)

	// Show if file exists
	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
