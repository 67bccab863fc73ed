package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jamesainslie/fsval/pkg/fsval/config"
	"github.com/jamesainslie/fsval/pkg/fsval/output"
	"github.com/jamesainslie/fsval/pkg/fsval/registry"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
	"github.com/jamesainslie/fsval/pkg/fsval/validate"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <target> <manifest>",
	Short: "Validate a directory against a manifest",
	Long: `Validate walks the target directory and checks every rule of the manifest
against it. A file target is validated as a single entry. The manifest is a YAML file or a name resolved through the
manifest search path (see 'fsval manifest list').

The report goes to stdout in the selected format and the verdict to stderr.
The exit status is 1 when any constraint fails.

Examples:
  fsval validate ./session demo_dlc
  fsval validate ./data ./rules.yaml --format json
  fsval validate ./data rules --allow-eval --raise-err`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

func init() {
	addOutputFlags(validateCmd)
	addSnapshotFlags(validateCmd)
	validateCmd.Flags().Bool("raise-err", false, "report a failed validation as an error")
	validateCmd.Flags().Bool("allow-eval", false, "enable eval constraints")
	validateCmd.Flags().String("default-query", "", "query for rules without one (default from config: **)")
	rootCmd.AddCommand(validateCmd)
}

// addOutputFlags registers --format and --template.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "", fmt.Sprintf("output format %v (default from config: %s)", output.Available(), config.DefaultFormat))
	cmd.Flags().String("template", "", "Go template used with --format template")
}

// addSnapshotFlags registers the walk options.
func addSnapshotFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("exclude", "e", nil, "gitignore-style exclude patterns (can be specified multiple times)")
	cmd.Flags().String("ignore-file", "", "ignore file inside the target (default: .fsvalignore)")
	cmd.Flags().IntP("workers", "w", 0, "walker goroutines (0=auto)")
}

// settingsFromFlags applies command flags on top of the loaded config.
func settingsFromFlags(cmd *cobra.Command) *config.Config {
	c := *cfg
	flags := cmd.Flags()

	if flags.Changed("allow-eval") {
		c.AllowEval, _ = flags.GetBool("allow-eval")
	}
	if flags.Changed("default-query") {
		c.DefaultQuery, _ = flags.GetString("default-query")
	}
	if flags.Changed("format") {
		c.Format, _ = flags.GetString("format")
	}
	if flags.Changed("exclude") {
		exclude, _ := flags.GetStringSlice("exclude")
		c.Snapshot.Exclude = append(append([]string(nil), c.Snapshot.Exclude...), exclude...)
	}
	if flags.Changed("ignore-file") {
		c.Snapshot.IgnoreFile, _ = flags.GetString("ignore-file")
	}
	if flags.Changed("workers") {
		c.Snapshot.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("debounce") {
		c.Watch.Debounce, _ = flags.GetDuration("debounce")
	}
	return &c
}

// formatterFor resolves the output format, building a template formatter
// when --template is set.
func formatterFor(cmd *cobra.Command, format string) (output.Formatter, error) {
	tmpl, _ := cmd.Flags().GetString("template")
	if format == "template" && tmpl != "" {
		return output.NewTemplateFormatter(tmpl), nil
	}
	f, err := output.Get(format)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", format, output.Available())
	}
	return f, nil
}

func validateOptions(s *config.Config, raiseErr bool) validate.Options {
	return validate.Options{
		Env:          s.Env(),
		DefaultQuery: s.DefaultQuery,
		RaiseErr:     raiseErr,
		Registry:     registry.New(s.ManifestDirs),
		Snapshot:     s.SnapshotOptions(),
	}
}

// resolveTarget expands and checks the target. A file target is a one-entry
// snapshot unless dirOnly is set.
func resolveTarget(target string, dirOnly bool) (string, error) {
	expanded, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path does not exist: %s", absPath)
		}
		return "", fmt.Errorf("cannot access path: %w", err)
	}
	if dirOnly && !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", absPath)
	}
	return absPath, nil
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runValidate(cmd *cobra.Command, args []string) error {
	s := settingsFromFlags(cmd)
	raiseErr, _ := cmd.Flags().GetBool("raise-err")

	formatter, err := formatterFor(cmd, s.Format)
	if err != nil {
		return err
	}

	target, err := resolveTarget(args[0], false)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	printVerbose("Validating %s against %s", target, args[1])
	ok, report, err := validate.ValidatePath(ctx, target, args[1], validateOptions(s, raiseErr))

	var failed *validate.ValidationFailed
	if err != nil && !errors.As(err, &failed) {
		return err
	}
	if failed != nil {
		report = failed.Report
	}

	if err := writeReport(cmd.OutOrStdout(), formatter, report); err != nil {
		return err
	}
	if !getQuiet() {
		fmt.Fprintln(cmd.ErrOrStderr(), report.Summary())
	}

	if failed != nil {
		return failed
	}
	if !ok {
		return errFailed
	}
	return nil
}

func writeReport(w io.Writer, f output.Formatter, report validate.Report) error {
	return writeResult(w, f, output.ForReport(report))
}

func writeResult(w io.Writer, f output.Formatter, r *output.Result) error {
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// snapshotFor walks target with the configured options.
func snapshotFor(ctx context.Context, target string, s *config.Config) (snapshot.Snapshot, error) {
	return snapshot.Build(ctx, target, s.SnapshotOptions()...)
}
