package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/fsval/pkg/fsval/config"
	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/jamesainslie/fsval/pkg/fsval/output"
	"github.com/jamesainslie/fsval/pkg/fsval/validate"
	"github.com/jamesainslie/fsval/pkg/fsval/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <target> <manifest>",
	Short: "Re-validate a directory whenever it changes",
	Long: `Watch validates the target once, then again after every burst of changes.
A run starts once no change has been seen for the debounce period.
Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	addOutputFlags(watchCmd)
	addSnapshotFlags(watchCmd)
	watchCmd.Flags().Bool("allow-eval", false, "enable eval constraints")
	watchCmd.Flags().String("default-query", "", "query for rules without one (default from config: **)")
	watchCmd.Flags().Duration("debounce", config.DefaultDebounce, "quiet period before re-validating")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	s := settingsFromFlags(cmd)
	log := logging.Get("watch")

	formatter, err := formatterFor(cmd, s.Format)
	if err != nil {
		return err
	}

	target, err := resolveTarget(args[0], true)
	if err != nil {
		return err
	}

	// Resolve the manifest once so a bad reference fails fast.
	opts := validateOptions(s, false)
	if _, err := validate.LoadManifest(args[1], opts); err != nil {
		return err
	}

	w, err := watch.New(target, watch.WithDebounce(s.Watch.Debounce))
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	run := func(ctx context.Context) {
		_, report, err := validate.ValidatePath(ctx, target, args[1], opts)
		if err != nil {
			if ctx.Err() == nil {
				printError("%v", err)
			}
			return
		}
		if err := writeResult(cmd.OutOrStdout(), formatter, output.ForReport(report)); err != nil {
			printError("%v", err)
			return
		}
		if !getQuiet() {
			fmt.Fprintln(cmd.ErrOrStderr(), report.Summary())
		}
	}

	printInfo("Watching %s (%d directories), press Ctrl-C to stop", target, w.Watched())
	run(ctx)

	err = w.Run(ctx, func(ctx context.Context, changes []watch.Change) {
		log.Info("re-validating", "target", target, "changes", len(changes))
		printInfo("\n%s: %d changes", time.Now().Format(time.TimeOnly), len(changes))
		for _, c := range changes {
			printVerbose("  %s %s", c.Op, c.Path)
		}
		run(ctx)
	})
	if errors.Is(err, context.Canceled) {
		printInfo("Stopped")
		return nil
	}
	return err
}
