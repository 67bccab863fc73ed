package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/fsval/pkg/fsval/registry"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
	"github.com/jamesainslie/fsval/pkg/fsval/validate"
)

func failedReport() validate.Report {
	return validate.Report{
		RunID:           "run-1",
		ManifestID:      "demo_dlc",
		ManifestVersion: "0.1",
		Target:          "/data/session",
		Entries:         3,
		Success:         false,
		Rules: []validate.RuleResult{
			{ID: "min_entries", Query: `glob("**")`, Selected: 3},
			{ID: "pose_tables", Query: `glob("*.csv")`, Selected: 2},
			{ID: "raw_videos", Query: `glob("**/*.mp4")`, Selected: 1, Passed: true},
		},
		Failures: []validate.Failure{
			{
				Rule:            "min_entries",
				RuleDescription: "At least 20 entries",
				Constraint:      "count_min",
				ConstraintValue: 20,
				Errors:          "Expected at least 20 entries, found 3",
			},
			{
				Rule:            "pose_tables",
				Constraint:      "regex",
				ConstraintValue: `\d+_poses\.csv`,
				Errors: map[string]string{
					"b|ad.csv": "does not match regex",
					"a.csv":    "does not match regex",
				},
			},
		},
		StartedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}
}

func testSnapshot() snapshot.Snapshot {
	snap := snapshot.FromPaths("data/", "data/a.csv", "readme.txt")
	snap[1].Size = 2048
	return snap
}

func testInfos() []registry.Info {
	return []registry.Info{
		{Name: "demo_dlc/default", Path: "demo_dlc/default.yaml", Source: "builtin", Reference: true},
		{Name: "demo_dlc/v0.1", ID: "demo_dlc", Version: "0.1", Description: "Pose data", Path: "demo_dlc/v0.1.yaml", Source: "builtin"},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func() Formatter { return &PlainFormatter{} })
	r.Register("a", func() Formatter { return &JSONFormatter{} })

	assert.Equal(t, []string{"a", "b"}, r.Available())

	f, err := r.Get("a")
	require.NoError(t, err)
	assert.IsType(t, &JSONFormatter{}, f)

	_, err = r.Get("nope")
	assert.ErrorContains(t, err, "unknown format: nope")
}

func TestDefaultRegistry(t *testing.T) {
	for _, name := range []string{"table", "plain", "json", "jsonl", "yaml", "csv", "markdown", "paths", "null", "template"} {
		assert.Contains(t, Available(), name)
	}
}

func TestAllFormattersHandleAllKinds(t *testing.T) {
	results := map[string]*Result{
		"report":    ForReport(failedReport()),
		"passed":    ForReport(validate.Report{ManifestID: "m", Success: true, Failures: []validate.Failure{}}),
		"snapshot":  ForSnapshot("/data", testSnapshot()),
		"empty":     ForSnapshot("/data", nil),
		"manifests": ForManifests(testInfos()),
	}

	for _, name := range Available() {
		for kind, res := range results {
			t.Run(name+"/"+kind, func(t *testing.T) {
				_, err := Render(name, res)
				assert.NoError(t, err)
			})
		}
	}
}

func TestUnsupportedKind(t *testing.T) {
	bad := &Result{Kind: Kind(99)}
	for _, name := range Available() {
		if name == "template" {
			continue
		}
		_, err := Render(name, bad)
		assert.True(t, errors.Is(err, ErrUnsupportedKind), name)
	}
}

func TestPlainReport(t *testing.T) {
	out, err := Render("plain", ForReport(failedReport()))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RULE"))
	assert.Contains(t, lines[1], "count_min")
	assert.Contains(t, lines[1], "Expected at least 20 entries, found 3")
	assert.Contains(t, lines[2], "a.csv: does not match regex; b|ad.csv: does not match regex")
	assert.NotContains(t, string(out), "\x1b[", "plain output has no escape codes")
}

func TestPlainSnapshot(t *testing.T) {
	out, err := Render("plain", ForSnapshot("/data", testSnapshot()))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "directory")
	assert.Contains(t, lines[1], "-")
	assert.Contains(t, lines[2], "2.0 KiB")
	assert.True(t, strings.HasSuffix(lines[2], "data/a.csv"))
}

func TestTableReport(t *testing.T) {
	out, err := Render("table", ForReport(failedReport()))
	require.NoError(t, err)

	s := string(out)
	for _, want := range []string{"demo_dlc", "/data/session", "min_entries", "count_min", "Validation failed with 2 errors!", "1.5s"} {
		assert.Contains(t, s, want)
	}
}

func TestTableEmpty(t *testing.T) {
	out, err := Render("table", ForReport(validate.Report{ManifestID: "m", Success: true}))
	require.NoError(t, err)
	assert.Contains(t, string(out), "No failures")
	assert.Contains(t, string(out), "Validation successful!")

	out, err = Render("table", ForManifests(nil))
	require.NoError(t, err)
	assert.Contains(t, string(out), "No manifests found")
}

func TestJSONReportKeys(t *testing.T) {
	out, err := Render("json", ForReport(failedReport()))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "demo_dlc", doc["manifest_id"])
	assert.Equal(t, false, doc["success"])

	failures, ok := doc["failures"].([]any)
	require.True(t, ok)
	require.Len(t, failures, 2)

	first := failures[0].(map[string]any)
	for _, key := range []string{"rule", "rule_description", "constraint_id", "constraint_value", "errors"} {
		assert.Contains(t, first, key)
	}
	assert.Equal(t, "count_min", first["constraint_id"])
	assert.Equal(t, float64(20), first["constraint_value"])
}

func TestJSONSnapshot(t *testing.T) {
	out, err := Render("json", ForSnapshot("/data", nil))
	require.NoError(t, err)

	var doc snapshotOutput
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "/data", doc.Root)
	assert.NotNil(t, doc.Entries)
	assert.Equal(t, 0, doc.Count)
}

func TestJSONL(t *testing.T) {
	out, err := Render("jsonl", ForSnapshot("/data", testSnapshot()))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)

	var e snapshot.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, "data/", e.Path)
	assert.Equal(t, snapshot.KindDirectory, e.Kind)
}

func TestYAMLManifests(t *testing.T) {
	out, err := Render("yaml", ForManifests(testInfos()))
	require.NoError(t, err)

	var doc manifestsOutput
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.Len(t, doc.Manifests, 2)
	assert.True(t, doc.Manifests[0].Reference)
	assert.Equal(t, "demo_dlc", doc.Manifests[1].ID)
	assert.Contains(t, string(out), "  - name: demo_dlc/default")
}

func TestYAMLReport(t *testing.T) {
	out, err := Render("yaml", ForReport(failedReport()))
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "constraint_id: count_min")
	assert.Contains(t, s, "rule_description: At least 20 entries")
}

func TestCSVQuoting(t *testing.T) {
	out, err := Render("csv", ForReport(failedReport()))
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"RULE", "DESCRIPTION", "CONSTRAINT", "VALUE", "ERRORS"}, records[0])
	assert.Equal(t, `\d+_poses\.csv`, records[2][3])
}

func TestMarkdownEscapesPipes(t *testing.T) {
	out, err := Render("markdown", ForReport(failedReport()))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| --- | --- | --- | --- | --- |", lines[1])
	assert.Contains(t, lines[3], `b\|ad.csv`)
	assert.Contains(t, lines[3], "<br>")
}

func TestPaths(t *testing.T) {
	out, err := Render("paths", ForReport(failedReport()))
	require.NoError(t, err)
	assert.Equal(t, "a.csv\nb|ad.csv\n", string(out))

	out, err = Render("null", ForSnapshot("/data", testSnapshot()))
	require.NoError(t, err)
	assert.Equal(t, "data/\x00data/a.csv\x00readme.txt\x00", string(out))

	out, err = Render("paths", ForManifests(testInfos()))
	require.NoError(t, err)
	assert.Equal(t, "demo_dlc/default\ndemo_dlc/v0.1\n", string(out))
}

func TestTemplateFormatter(t *testing.T) {
	f := NewTemplateFormatter(`{{range .Snapshot}}{{.Path}}={{bytes .Size}}{{"\n"}}{{end}}`)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, ForSnapshot("/data", testSnapshot())))
	assert.Contains(t, buf.String(), "data/a.csv=2.0 KiB")

	f.SetTemplate(`{{with .Report}}{{range .Failures}}{{errors .Errors}}|{{end}}{{end}}`)
	buf.Reset()
	require.NoError(t, f.Format(&buf, ForReport(failedReport())))
	assert.Equal(t, "Expected at least 20 entries, found 3|a.csv: does not match regex; b|ad.csv: does not match regex|", buf.String())

	f.SetTemplate(`{{.Broken`)
	assert.Error(t, f.Format(&buf, ForReport(failedReport())))
}

func TestFormatErrors(t *testing.T) {
	assert.Equal(t, "", FormatErrors(nil, ";"))
	assert.Equal(t, "msg", FormatErrors("msg", ";"))
	assert.Equal(t, "a: x;b: y", FormatErrors(map[string]string{"b": "y", "a": "x"}, ";"))
	assert.Equal(t, "[1 2]", FormatErrors([]int{1, 2}, ";"))
}
