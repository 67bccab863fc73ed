package rule

import (
	"errors"
	"testing"

	"github.com/jamesainslie/fsval/pkg/fsval/constraint"
	"github.com/jamesainslie/fsval/pkg/fsval/query"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() snapshot.Snapshot {
	return snapshot.FromPaths(
		"2021-10-01_poses.csv",
		"2021-10-02_poses.csv",
		"2021-10-02_raw.mp4",
		"videos/",
		"videos/a.mp4",
	)
}

func TestFromMap(t *testing.T) {
	r, err := FromMap(map[string]any{
		"id":          "csv_count",
		"description": "At least two pose files",
		"query":       "*.csv",
		"count_min":   2,
		"regex":       `\d{4}-\d{2}-\d{2}_poses\.csv`,
	})
	require.NoError(t, err)

	assert.Equal(t, "csv_count", r.ID)
	assert.Equal(t, "At least two pose files", r.Description)
	require.Len(t, r.Constraints, 2)
	assert.Equal(t, constraint.NameCountMin, r.Constraints[0].Name())
	assert.Equal(t, constraint.NameRegex, r.Constraints[1].Name())

	outcomes, err := r.Validate(constraint.Env{}, testSnapshot())
	require.NoError(t, err)
	assert.True(t, OK(outcomes))
}

func TestFromMapDefaultQuery(t *testing.T) {
	r, err := FromMap(map[string]any{"count_min": 5})
	require.NoError(t, err)
	assert.Equal(t, `glob("**")`, r.Query.Key())

	r, err = FromMap(map[string]any{"count_min": 5}, WithDefaultQuery("videos/**"))
	require.NoError(t, err)
	assert.Equal(t, `glob("videos/**")`, r.Query.Key())
}

func TestFromMapQueryMapping(t *testing.T) {
	r, err := FromMap(map[string]any{
		"query":     map[string]any{"path": "**/*.mp4", "type": "file"},
		"count_max": 1,
	})
	require.NoError(t, err)

	outcomes, err := r.Validate(constraint.Env{}, testSnapshot())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Result.OK())
	assert.Len(t, outcomes[0].Result.Context.Snapshot, 2, "constraint sees only the selected entries")
}

func TestFromMapErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		wantID  string
		wantMsg string
	}{
		{
			name:    "unknown constraint",
			input:   map[string]any{"id": "r1", "count_min": 1, "size_max": 10},
			wantID:  "r1",
			wantMsg: `unknown constraint: "size_max"`,
		},
		{
			name:    "query wrong type",
			input:   map[string]any{"id": "r2", "query": 12, "count_min": 1},
			wantID:  "r2",
			wantMsg: "must be a string",
		},
		{
			name:    "empty query mapping",
			input:   map[string]any{"query": map[string]any{}, "count_min": 1},
			wantMsg: "empty",
		},
		{
			name:    "constructor error",
			input:   map[string]any{"id": "r4", "count_min": "lots"},
			wantID:  "r4",
			wantMsg: "must be an integer",
		},
		{
			name:    "no constraints",
			input:   map[string]any{"id": "r5", "query": "**"},
			wantID:  "r5",
			wantMsg: "no constraints",
		},
		{
			name:    "invalid glob",
			input:   map[string]any{"query": "[", "count_min": 1},
			wantMsg: "error parsing query",
		},
		{
			name:    "id wrong type",
			input:   map[string]any{"id": 7, "count_min": 1},
			wantMsg: "id must be a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.input)
			require.Error(t, err)

			var re *InvalidRuleError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.wantID, re.RuleID)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFromMapQueryErrorIsQueryError(t *testing.T) {
	_, err := FromMap(map[string]any{"query": map[string]any{}, "count_min": 1})
	var qe *query.InvalidQueryError
	assert.True(t, errors.As(err, &qe))
}

func TestGeneratedIDIsDeterministic(t *testing.T) {
	input := func() map[string]any {
		return map[string]any{
			"query":     map[string]any{"path": "**/*.mp4", "type": "file"},
			"count_min": 1,
			"count_max": 10,
			"regex":     ".*",
		}
	}

	a, err := FromMap(input())
	require.NoError(t, err)
	b, err := FromMap(input())
	require.NoError(t, err)

	assert.Len(t, a.ID, IDLength)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, a.Equal(b))

	changed := input()
	changed["count_max"] = 11
	c, err := FromMap(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
	assert.False(t, a.Equal(c))
}

func TestGenerateIDMatchesNew(t *testing.T) {
	g, err := query.NewGlob("*.csv")
	require.NoError(t, err)
	cs := []constraint.Constraint{constraint.CountMin{N: 3}}

	r := New("", "", g, cs...)
	assert.Equal(t, GenerateID(g, cs), r.ID)

	explicit := New("mine", "", g, cs...)
	assert.Equal(t, "mine", explicit.ID)
}

func TestNewDefaultsQuery(t *testing.T) {
	r := New("", "", nil, constraint.CountMin{N: 1})
	require.NotNil(t, r.Query)
	assert.Len(t, r.Query.Filter(testSnapshot()), 5)
}

func TestValidateRunsAllConstraints(t *testing.T) {
	g, err := query.NewGlob("*.csv")
	require.NoError(t, err)
	re, err := constraint.NewRegex(`.*raw.*`)
	require.NoError(t, err)

	r := New("", "", g, constraint.CountMin{N: 20}, constraint.CountMax{N: 1}, re)
	outcomes, err := r.Validate(constraint.Env{}, testSnapshot())
	require.NoError(t, err)

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.Result.OK(), o.Constraint.Name())
	}
	assert.False(t, OK(outcomes))
}

func TestValidateEvalErrorAborts(t *testing.T) {
	r := New("with-eval", "", nil, constraint.CountMin{N: 0}, &constraint.Eval{Source: "nonempty"})

	_, err := r.Validate(constraint.Env{AllowEval: false}, testSnapshot())
	require.Error(t, err)

	var evalErr *constraint.EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, constraint.StageDisabled, evalErr.Stage)
	assert.Contains(t, err.Error(), "with-eval")
}

func TestEqualNil(t *testing.T) {
	var a, b *Rule
	assert.True(t, a.Equal(b))
	assert.False(t, New("x", "", nil, constraint.CountMin{N: 1}).Equal(nil))
}

func TestHash(t *testing.T) {
	assert.Equal(t, Hash([]any{"a", 1}), Hash([]any{"a", 1}))
	assert.NotEqual(t, Hash([]any{"a", 1}), Hash([]any{"a", 2}))
	assert.Len(t, Hash("x"), IDLength)
}
