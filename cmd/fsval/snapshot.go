package main

import (
	"github.com/jamesainslie/fsval/pkg/fsval/output"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <target>",
	Short: "Show the entries fsval sees in a directory",
	Long: `Walk the target the way validate does and print every entry with its type,
size and modification time. Ignore files and excludes apply.

Examples:
  fsval snapshot ./data
  fsval snapshot ./data -o paths
  fsval snapshot ./data -e '*.tmp' -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshot,
}

func init() {
	addOutputFlags(snapshotCmd)
	addSnapshotFlags(snapshotCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	s := settingsFromFlags(cmd)

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

	snap, err := snapshotFor(ctx, target, s)
	if err != nil {
		return err
	}
	printVerbose("Found %d entries", len(snap))

	return writeResult(cmd.OutOrStdout(), formatter, output.ForSnapshot(target, snap))
}
