package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jamesainslie/fsval/pkg/fsval/config"
	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errFailed is returned after a failed validation has been reported. It
// only sets the exit status.
var errFailed = errors.New("validation failed")

var (
	cfgFile string
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "fsval",
		Short: "Validate directory trees against declarative manifests",
		Long: `fsval checks that a directory tree matches a manifest: a list of rules,
each selecting entries with a glob query and checking them with constraints
such as count_min, count_max and regex.

Examples:
  fsval validate ./session demo_dlc          # Validate against a builtin manifest
  fsval validate ./data rules.yaml -o json   # Validate with a manifest file, JSON report
  fsval manifest list                        # List known manifests
  fsval snapshot ./data                      # Show what the validator sees
  fsval watch ./session demo_dlc             # Re-validate on every change`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/fsval/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().String("log-level", "", "also log to stderr at this level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file (default: $XDG_STATE_HOME/fsval/fsval.log)")
	rootCmd.PersistentFlags().StringSlice("manifest-dir", nil, "extra manifest search directory (can be specified multiple times)")

	// Bind flags to viper
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errFailed) {
		printError("%v", err)
	}
	return err
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr if quiet mode is not enabled. Stdout
// is reserved for formatted output.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
