package main

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/fsval/pkg/fsval/manifest"
	"github.com/jamesainslie/fsval/pkg/fsval/output"
	"github.com/jamesainslie/fsval/pkg/fsval/registry"
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Find, show and check manifests",
	Long: `Manifests are resolved by name or path. A name is looked up in:
  1. ./manifests
  2. directories from --manifest-dir and manifest_dirs in the config
  3. $XDG_DATA_HOME/fsval/manifests
  4. the manifests built into fsval

Within each location NAME, NAME.yaml and NAME/default.yaml are tried.`,
}

var manifestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known manifests",
	Long: `List every manifest on the search path. Earlier locations shadow later ones
with the same name. Files that only include another manifest are shown as
"(include)".`,
	Args: cobra.NoArgs,
	RunE: runManifestList,
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <manifest>",
	Short: "Print a resolved manifest as YAML",
	Long:  `Resolve a manifest, follow its includes and print it with generated ids filled in.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runManifestShow,
}

var manifestCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Check a manifest file",
	Long: `Check a manifest file against the manifest schema and build its rules.
Every problem is listed; the exit status is 1 when any is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifestCheck,
}

func init() {
	manifestListCmd.Flags().String("query", "", "only list manifests whose name matches this regular expression")
	addOutputFlags(manifestListCmd)

	manifestCmd.AddCommand(manifestListCmd)
	manifestCmd.AddCommand(manifestShowCmd)
	manifestCmd.AddCommand(manifestCheckCmd)
	rootCmd.AddCommand(manifestCmd)
}

// runManifestList lists manifests on the search path.
func runManifestList(cmd *cobra.Command, _ []string) error {
	s := settingsFromFlags(cmd)
	query, _ := cmd.Flags().GetString("query")

	formatter, err := formatterFor(cmd, s.Format)
	if err != nil {
		return err
	}

	reg := registry.New(s.ManifestDirs)
	printVerbose("Search path: %v", reg.Dirs())

	infos, err := reg.List(query)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), formatter, output.ForManifests(infos))
}

// runManifestShow prints one resolved manifest.
func runManifestShow(cmd *cobra.Command, args []string) error {
	reg := registry.New(cfg.ManifestDirs)

	loc, err := reg.Find(args[0])
	if err != nil {
		return err
	}
	printVerbose("Found %s (%s)", loc.Path, loc.Source)

	m, err := loc.Load(manifest.WithDefaultQuery(cfg.DefaultQuery))
	if err != nil {
		return err
	}

	data, err := m.ToYAML()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// runManifestCheck reports schema and rule problems in a manifest file.
func runManifestCheck(cmd *cobra.Command, args []string) error {
	m, err := manifest.FromYAML(args[0], manifest.WithDefaultQuery(cfg.DefaultQuery))
	if err != nil {
		var invalid *manifest.InvalidManifestError
		if !errors.As(err, &invalid) {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: invalid\n", args[0])
		for _, d := range invalid.Diagnostics() {
			fmt.Fprintf(out, "  - %s\n", d)
		}
		return errFailed
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (id %s, version %s, %d rules)\n", args[0], m.ID, m.Version, len(m.Rules))
	return nil
}
