package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jamesainslie/fsval/pkg/fsval/constraint"
	"github.com/jamesainslie/fsval/pkg/fsval/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dlcManifest = `id: demo_dlc
version: 0.1
description: Pose estimation outputs
rules:
  - id: min_entries
    description: At least 20 entries
    count_min: 20
  - query: "*.csv"
    regex: '\d{4}-\d{2}-\d{2}_poses\.csv'
  - query:
      path: "**/*.mp4"
      type: file
    count_max: 10
`

// writeFiles creates files under a temp dir and returns the dir.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestFromYAML(t *testing.T) {
	root := writeFiles(t, map[string]string{"dlc.yaml": dlcManifest})

	m, err := FromYAML(filepath.Join(root, "dlc.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "demo_dlc", m.ID)
	assert.Equal(t, "0.1", m.Version)
	assert.Equal(t, "Pose estimation outputs", m.Description)
	assert.Equal(t, filepath.Join(root, "dlc.yaml"), m.Meta.Path)
	require.Len(t, m.Rules, 3)
	assert.Equal(t, "min_entries", m.Rules[0].ID)
	assert.Len(t, m.Rules[1].ID, rule.IDLength)
	assert.Equal(t, `and(glob("**/*.mp4"),type("file"))`, m.Rules[2].Query.Key())

	r, ok := m.Rule("min_entries")
	require.True(t, ok)
	assert.Equal(t, "At least 20 entries", r.Description)
}

func TestIdempotentParsing(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"dlc.yaml":       dlcManifest,
		"generated.yaml": "version: '2'\ndescription: no ids\nrules:\n  - count_min: 1\n  - query: '*.txt'\n    count_max: 3\n",
	})

	for _, name := range []string{"dlc.yaml", "generated.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(root, name)

			fromYAML, err := FromYAML(path)
			require.NoError(t, err)

			raw, err := ReadYAML(path)
			require.NoError(t, err)
			fromMap, err := FromMap(raw)
			require.NoError(t, err)

			assert.True(t, fromYAML.Equal(fromMap))
		})
	}
}

func TestGeneratedIDIsDeterministic(t *testing.T) {
	input := func() map[string]any {
		return map[string]any{
			"version":     "1.0",
			"description": "d",
			"rules":       []any{map[string]any{"count_min": 1}},
		}
	}

	a, err := FromMap(input())
	require.NoError(t, err)
	b, err := FromMap(input())
	require.NoError(t, err)

	assert.Len(t, a.ID, rule.IDLength)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, GenerateID(a.Version, a.Rules), a.ID)

	other := input()
	other["version"] = "1.1"
	c, err := FromMap(other)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestEqual(t *testing.T) {
	base := func() *Manifest {
		return New("m", "1", "desc", "",
			rule.New("a", "", nil, mustConstraint(t, "count_min", 1)),
			rule.New("b", "", nil, mustConstraint(t, "count_max", 5)),
		)
	}

	assert.True(t, base().Equal(base()))

	differentDescription := base()
	differentDescription.Description = "other"
	assert.True(t, base().Equal(differentDescription), "description is not part of identity")

	reordered := base()
	reordered.Rules[0], reordered.Rules[1] = reordered.Rules[1], reordered.Rules[0]
	assert.False(t, base().Equal(reordered))

	differentVersion := base()
	differentVersion.Version = "2"
	assert.False(t, base().Equal(differentVersion))

	var nilManifest *Manifest
	assert.False(t, base().Equal(nilManifest))
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		wantDiag []string
	}{
		{
			name:     "missing version and description",
			input:    map[string]any{"rules": []any{map[string]any{"count_min": 1}}},
			wantDiag: []string{"description: required key is missing", "version: required key is missing"},
		},
		{
			name:     "empty rules",
			input:    map[string]any{"version": "1", "description": "d", "rules": []any{}},
			wantDiag: []string{"rules: cannot be blank"},
		},
		{
			name:     "rules not a list",
			input:    map[string]any{"version": "1", "description": "d", "rules": "all"},
			wantDiag: []string{"rules: must be a list, not string"},
		},
		{
			name: "rule not a mapping",
			input: map[string]any{"version": "1", "description": "d", "rules": []any{
				map[string]any{"count_min": 1}, "oops",
			}},
			wantDiag: []string{"rules.1: must be a mapping, not string"},
		},
		{
			name: "rule without constraints",
			input: map[string]any{"version": "1", "description": "d", "rules": []any{
				map[string]any{"query": "**"},
			}},
			wantDiag: []string{"rules.0: must declare at least one constraint"},
		},
		{
			name: "bad query type",
			input: map[string]any{"version": "1", "description": "d", "rules": []any{
				map[string]any{"query": 3, "count_min": 1},
			}},
			wantDiag: []string{"rules.0.query: must be a string or a mapping, not int"},
		},
		{
			name: "unknown top-level key",
			input: map[string]any{"version": "1", "description": "d", "owner": "me", "rules": []any{
				map[string]any{"count_min": 1},
			}},
			wantDiag: []string{"owner: key not expected"},
		},
		{
			name: "null version",
			input: map[string]any{"version": nil, "description": "d", "rules": []any{
				map[string]any{"count_min": 1},
			}},
			wantDiag: []string{"version: is required"},
		},
		{
			name:     "empty document",
			input:    map[string]any{},
			wantDiag: []string{"document is empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.input)
			require.Error(t, err)

			var ie *InvalidManifestError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tt.wantDiag, ie.Diagnostics())

			_, err = FromMap(tt.input, WithCheck(true))
			assert.True(t, errors.As(err, &ie))
		})
	}
}

func TestCheckAcceptsZeroVersion(t *testing.T) {
	for _, v := range []any{0, 0.0, "0"} {
		input := map[string]any{"version": v, "description": "d", "rules": []any{
			map[string]any{"count_min": 1},
		}}
		require.NoError(t, Check(input), "version %#v", v)

		m, err := FromMap(input, WithCheck(true))
		require.NoError(t, err)
		assert.Equal(t, "0", m.Version)
	}
}

func TestCheckValid(t *testing.T) {
	root := writeFiles(t, map[string]string{"dlc.yaml": dlcManifest})
	raw, err := ReadYAML(filepath.Join(root, "dlc.yaml"))
	require.NoError(t, err)
	assert.NoError(t, Check(raw))
}

func TestFromMapRuleErrors(t *testing.T) {
	input := map[string]any{
		"version":     "1",
		"description": "d",
		"rules": []any{
			map[string]any{"count_min": 1},
			map[string]any{"id": "bad", "count_min": 1, "size_max": 4},
		},
	}

	_, err := FromMap(input)
	require.Error(t, err)

	var ie *InvalidManifestError
	require.True(t, errors.As(err, &ie))
	var re *rule.InvalidRuleError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "bad", re.RuleID)
	assert.Contains(t, err.Error(), "rules[1]")
}

func TestFromMapRuleErrorWithoutID(t *testing.T) {
	input := map[string]any{
		"version":     "1",
		"description": "d",
		"rules": []any{
			map[string]any{"count_min": 1},
			map[string]any{"count_min": "lots"},
		},
	}

	_, err := FromMap(input)
	require.Error(t, err)

	var re *rule.InvalidRuleError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "rules[1]", re.RuleID)
	assert.Contains(t, err.Error(), `error parsing rule "rules[1]"`)
}

func TestFromMapWithoutCheck(t *testing.T) {
	m, err := FromMap(map[string]any{"rules": []map[string]any{{"count_min": 2}}})
	require.NoError(t, err)
	assert.Empty(t, m.Version)
	assert.Len(t, m.Rules, 1)
}

func TestFromMapDefaultQuery(t *testing.T) {
	m, err := FromMap(map[string]any{
		"version":     "1",
		"description": "d",
		"rules":       []any{map[string]any{"count_min": 2}},
	}, WithDefaultQuery("data/**"))
	require.NoError(t, err)
	assert.Equal(t, `glob("data/**")`, m.Rules[0].Query.Key())
}

func TestFromYAMLErrors(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"syntax.yaml":    "version: [1\n",
		"list.yaml":      "- a\n- b\n",
		"unchecked.yaml": "version: 1\nrules:\n  - count_min: 1\n",
	})

	t.Run("missing file surfaces fs error", func(t *testing.T) {
		_, err := FromYAML(filepath.Join(root, "nope.yaml"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("yaml syntax", func(t *testing.T) {
		_, err := FromYAML(filepath.Join(root, "syntax.yaml"))
		var ie *InvalidManifestError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, filepath.Join(root, "syntax.yaml"), ie.Path)
	})

	t.Run("not a mapping", func(t *testing.T) {
		_, err := FromYAML(filepath.Join(root, "list.yaml"))
		assert.ErrorContains(t, err, "must be a mapping, not a list")
	})

	t.Run("check runs by default", func(t *testing.T) {
		_, err := FromYAML(filepath.Join(root, "unchecked.yaml"))
		assert.ErrorContains(t, err, "description")

		m, err := FromYAML(filepath.Join(root, "unchecked.yaml"), WithCheck(false))
		require.NoError(t, err)
		assert.Equal(t, "1", m.Version)
	})
}

func TestIncludes(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"proj/v1.yaml":           dlcManifest,
		"proj/default.yaml":      "!include v1.yaml\n",
		"proj/rules.yaml":        "version: '3'\ndescription: split\nrules: !include shared/rules.yaml\n",
		"proj/shared/rules.yaml": "- count_min: 1\n- query: '*.txt'\n  count_max: 2\n",
		"proj/empty.yaml":        "",
		"proj/uses_empty.yaml":   "version: '1'\ndescription: d\nrules:\n  - !include empty.yaml\n",
		"cycle/a.yaml":           "!include b.yaml\n",
		"cycle/b.yaml":           "!include a.yaml\n",
	})

	t.Run("whole document", func(t *testing.T) {
		ref, err := FromYAML(filepath.Join(root, "proj", "default.yaml"))
		require.NoError(t, err)
		direct, err := FromYAML(filepath.Join(root, "proj", "v1.yaml"))
		require.NoError(t, err)
		assert.True(t, ref.Equal(direct))
	})

	t.Run("nested value", func(t *testing.T) {
		m, err := FromYAML(filepath.Join(root, "proj", "rules.yaml"))
		require.NoError(t, err)
		assert.Len(t, m.Rules, 2)
	})

	t.Run("empty document is an empty mapping", func(t *testing.T) {
		raw, err := ReadYAML(filepath.Join(root, "proj", "empty.yaml"))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, raw)

		// The included rule is an empty mapping, which has no constraints.
		_, err = FromYAML(filepath.Join(root, "proj", "uses_empty.yaml"))
		assert.ErrorContains(t, err, "constraint")
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := FromYAML(filepath.Join(root, "cycle", "a.yaml"))
		assert.ErrorIs(t, err, ErrIncludeCycle)
	})
}

func TestFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"demo/v0.1.yaml":    {Data: []byte(dlcManifest)},
		"demo/default.yaml": {Data: []byte("!include v0.1.yaml\n")},
		"other/broken.yaml": {Data: []byte("!include ../missing.yaml\n")},
	}

	m, err := FromFS(fsys, "demo/default.yaml")
	require.NoError(t, err)
	assert.Equal(t, "demo_dlc", m.ID)
	assert.Equal(t, "demo/default.yaml", m.Meta.Path)

	_, err = FromFS(fsys, "other/broken.yaml")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestIsReference(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"default.yaml": "!include v1.yaml\n",
		"v1.yaml":      dlcManifest,
		"empty.yaml":   "",
	})

	tests := []struct {
		name string
		want bool
	}{
		{"default.yaml", true},
		{"v1.yaml", false},
		{"empty.yaml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsReference(filepath.Join(root, tt.name))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := IsReference(filepath.Join(root, "missing.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestToYAMLRoundTrip(t *testing.T) {
	root := writeFiles(t, map[string]string{"dlc.yaml": dlcManifest})
	m, err := FromYAML(filepath.Join(root, "dlc.yaml"))
	require.NoError(t, err)

	data, err := m.ToYAML()
	require.NoError(t, err)

	out := filepath.Join(root, "out.yaml")
	require.NoError(t, os.WriteFile(out, data, 0o644))

	again, err := FromYAML(out)
	require.NoError(t, err)
	assert.True(t, m.Equal(again), string(data))
	assert.Equal(t, m.Description, again.Description)
}

func TestSummary(t *testing.T) {
	err := Check(map[string]any{"version": "1", "rules": []any{map[string]any{"count_min": 1}}})
	assert.Equal(t, "description: required key is missing", Summary(err))
	assert.Equal(t, "plain", Summary(errors.New("plain")))
}

func mustConstraint(t *testing.T, name string, value any) constraint.Constraint {
	t.Helper()
	c, err := constraint.New(name, value)
	require.NoError(t, err)
	return c
}
