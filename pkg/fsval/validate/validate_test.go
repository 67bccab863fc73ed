package validate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/fsval/pkg/fsval/constraint"
	"github.com/jamesainslie/fsval/pkg/fsval/manifest"
	"github.com/jamesainslie/fsval/pkg/fsval/registry"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustManifest(t *testing.T, rules ...map[string]any) *manifest.Manifest {
	t.Helper()
	m, err := manifest.FromMap(map[string]any{
		"version":     "1",
		"description": "test manifest",
		"rules":       rules,
	}, manifest.WithCheck(true))
	require.NoError(t, err)
	return m
}

func numberedFiles(n int) snapshot.Snapshot {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("file_%02d.txt", i)
	}
	return snapshot.FromPaths(paths...)
}

func TestValidateCountMinFails(t *testing.T) {
	snap := snapshot.FromPaths("x.csv", "y.csv", "z.mp4")
	m := mustManifest(t, map[string]any{"count_min": 20})

	ok, report, err := Validate(snap, m, Options{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, report.Success)

	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, "count_min", f.Constraint)
	assert.Equal(t, 20, f.ConstraintValue)
	assert.Equal(t, m.Rules[0].ID, f.Rule)
	assert.Equal(t, "Expected at least 20 entries, found 3", f.Errors)
	assert.Equal(t, "Validation failed with 1 errors!", report.Summary())
}

func TestValidatePasses(t *testing.T) {
	m := mustManifest(t, map[string]any{"count_min": 20, "count_max": 30})

	ok, report, err := Validate(numberedFiles(25), m, Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, report.Failures)
	assert.NotNil(t, report.Failures)
	assert.Equal(t, 25, report.Entries)
	assert.Equal(t, "Validation successful!", report.Summary())

	require.Len(t, report.Rules, 1)
	assert.True(t, report.Rules[0].Passed)
	assert.Equal(t, 25, report.Rules[0].Selected)
}

func TestValidateFailureOrder(t *testing.T) {
	snap := snapshot.FromPaths("a.csv", "b.csv", "movie.mp4", "clips/", "clips/c.mp4")
	m := mustManifest(t,
		map[string]any{"id": "first", "description": "csv files", "query": "*.csv", "count_min": 5, "regex": `a\.csv`},
		map[string]any{"id": "second", "query": "**/*.mp4", "count_max": 1},
		map[string]any{"id": "third", "query": map[string]any{"type": "directory"}, "count_min": 1},
	)

	ok, report, err := Validate(snap, m, Options{})
	require.NoError(t, err)
	assert.False(t, ok)

	var got []string
	for _, f := range report.Failures {
		got = append(got, f.Rule+":"+f.Constraint)
	}
	assert.Equal(t, []string{"first:count_min", "first:regex", "second:count_max"}, got)

	assert.Equal(t, "csv files", report.Failures[0].RuleDescription)
	assert.Equal(t, map[string]string{"b.csv": `does not match regex "a\\.csv"`}, report.Failures[1].Errors)

	require.Len(t, report.Rules, 3)
	assert.Equal(t, 2, report.Rules[0].Selected)
	assert.True(t, report.Rules[2].Passed)
}

func TestValidateRaiseErr(t *testing.T) {
	m := mustManifest(t, map[string]any{"count_min": 20})

	ok, report, err := Validate(numberedFiles(3), m, Options{RaiseErr: true})
	assert.False(t, ok)

	var vf *ValidationFailed
	require.True(t, errors.As(err, &vf))
	assert.Len(t, vf.Report.Failures, 1, "report is built before failing")
	assert.Equal(t, report.RunID, vf.Report.RunID)
	assert.Contains(t, err.Error(), m.ID)

	_, _, err = Validate(numberedFiles(25), m, Options{RaiseErr: true})
	assert.NoError(t, err, "success never raises")
}

func TestValidateEvalDisabledAborts(t *testing.T) {
	m := mustManifest(t,
		map[string]any{"count_min": 100},
		map[string]any{"eval": "def nonempty(snapshot):\n    return len(snapshot) > 0"},
	)

	_, _, err := Validate(numberedFiles(3), m, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, constraint.ErrEvalDisabled)

	var vf *ValidationFailed
	assert.False(t, errors.As(err, &vf))

	ok, _, err := Validate(numberedFiles(3), m, Options{Env: constraint.Env{AllowEval: true}})
	require.NoError(t, err)
	assert.False(t, ok, "count_min still fails once eval is allowed")
}

func TestValidateRunIDs(t *testing.T) {
	m := mustManifest(t, map[string]any{"count_min": 0})
	_, a, err := Validate(nil, m, Options{})
	require.NoError(t, err)
	_, b, err := Validate(nil, m, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestValidatePath(t *testing.T) {
	target := t.TempDir()
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(target, fmt.Sprintf("2021-10-0%d_poses.csv", i+1)), nil, 0o644))
	}

	reg := registry.NewWithDirs(nil)
	opts := Options{Registry: reg}

	ok, report, err := ValidatePath(context.Background(), target, "demo_dlc", opts)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, target, report.Target)
	assert.Equal(t, "demo_dlc", report.ManifestID)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "min_entries", report.Failures[0].Rule)

	opts.RaiseErr = true
	_, _, err = ValidatePath(context.Background(), target, "demo_dlc", opts)
	var vf *ValidationFailed
	require.True(t, errors.As(err, &vf))
	assert.Equal(t, target, vf.Report.Target)
}

func TestValidatePathErrors(t *testing.T) {
	reg := registry.NewWithDirs(nil)

	_, _, err := ValidatePath(context.Background(), t.TempDir(), "no_such_manifest", Options{Registry: reg})
	assert.ErrorIs(t, err, registry.ErrManifestNotFound)

	_, _, err = ValidatePath(context.Background(), filepath.Join(t.TempDir(), "missing"), "demo_dlc", Options{Registry: reg})
	assert.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	_, _, err = ValidatePath(ctx, dir, "demo_dlc", Options{Registry: reg})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadManifestDefaultQuery(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.yaml")
	require.NoError(t, os.WriteFile(p, []byte("version: '1'\ndescription: d\nrules:\n  - count_min: 1\n"), 0o644))

	m, err := LoadManifest(p, Options{DefaultQuery: "data/**", Registry: registry.NewWithDirs(nil)})
	require.NoError(t, err)
	assert.Equal(t, `glob("data/**")`, m.Rules[0].Query.Key())
}
