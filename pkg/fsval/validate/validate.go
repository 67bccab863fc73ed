// Package validate runs a manifest against a snapshot and reports every
// failed constraint.
package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/fsval/pkg/fsval/constraint"
	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/jamesainslie/fsval/pkg/fsval/manifest"
	"github.com/jamesainslie/fsval/pkg/fsval/registry"
	"github.com/jamesainslie/fsval/pkg/fsval/rule"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

var logger = logging.Get("validate")

// Options configures a validation run.
type Options struct {
	// Env is passed to every constraint.
	Env constraint.Env

	// DefaultQuery is the pattern for rules without a query when the
	// manifest is loaded by ValidatePath.
	DefaultQuery string

	// RaiseErr makes a failed validation return *ValidationFailed.
	RaiseErr bool

	// Registry resolves manifest references. Nil uses registry.New(nil).
	Registry *registry.Registry

	// Snapshot configures the walk in ValidatePath.
	Snapshot []snapshot.Option
}

// Failure is one failed constraint of one rule.
type Failure struct {
	Rule            string `json:"rule" yaml:"rule"`
	RuleDescription string `json:"rule_description" yaml:"rule_description"`
	Constraint      string `json:"constraint_id" yaml:"constraint_id"`
	ConstraintValue any    `json:"constraint_value" yaml:"constraint_value"`
	Errors          any    `json:"errors" yaml:"errors"`
}

// RuleResult summarizes one rule of the run.
type RuleResult struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Query       string `json:"query" yaml:"query"`
	Selected    int    `json:"selected" yaml:"selected"`
	Passed      bool   `json:"passed" yaml:"passed"`
}

// Report is the outcome of a validation run. Failures are ordered by rule,
// then by constraint, as declared in the manifest.
type Report struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	ManifestID      string        `json:"manifest_id" yaml:"manifest_id"`
	ManifestVersion string        `json:"manifest_version" yaml:"manifest_version"`
	Target          string        `json:"target,omitempty" yaml:"target,omitempty"`
	Entries         int           `json:"entries" yaml:"entries"`
	Success         bool          `json:"success" yaml:"success"`
	Rules           []RuleResult  `json:"rules" yaml:"rules"`
	Failures        []Failure     `json:"failures" yaml:"failures"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Summary is the one-line verdict printed after a run.
func (r Report) Summary() string {
	if r.Success {
		return "Validation successful!"
	}
	return fmt.Sprintf("Validation failed with %d errors!", len(r.Failures))
}

// ValidationFailed is returned for a failed run when Options.RaiseErr is
// set. The report is complete.
type ValidationFailed struct {
	Report Report
}

func (e *ValidationFailed) Error() string {
	return fmt.Sprintf("validation of manifest %s failed with %d errors", e.Report.ManifestID, len(e.Report.Failures))
}

// Validate checks every rule of m against snap. It returns whether all
// constraints passed and the report of failures. An error from any
// constraint aborts the run.
func Validate(snap snapshot.Snapshot, m *manifest.Manifest, opts Options) (bool, Report, error) {
	start := time.Now()
	report := Report{
		RunID:           uuid.NewString(),
		ManifestID:      m.ID,
		ManifestVersion: m.Version,
		Entries:         len(snap),
		Rules:           make([]RuleResult, 0, len(m.Rules)),
		Failures:        []Failure{},
		StartedAt:       start,
	}
	log := logger.With("run", report.RunID)

	success := true
	for _, r := range m.Rules {
		outcomes, err := r.Validate(opts.Env, snap)
		if err != nil {
			log.Error("rule errored", "rule", r.ID, "error", err)
			return false, report, err
		}

		passed := rule.OK(outcomes)
		success = success && passed

		selected := 0
		if len(outcomes) > 0 {
			selected = len(outcomes[0].Result.Context.Snapshot)
		}
		report.Rules = append(report.Rules, RuleResult{
			ID:          r.ID,
			Description: r.Description,
			Query:       r.Query.Key(),
			Selected:    selected,
			Passed:      passed,
		})

		for _, o := range outcomes {
			if o.Result.OK() {
				continue
			}
			report.Failures = append(report.Failures, Failure{
				Rule:            r.ID,
				RuleDescription: r.Description,
				Constraint:      o.Constraint.Name(),
				ConstraintValue: o.Constraint.Value(),
				Errors:          o.Result.Message,
			})
		}
		log.Debug("rule checked", "rule", r.ID, "selected", selected, "passed", passed)
	}

	report.Success = success
	report.Duration = time.Since(start)
	log.Info("validation finished",
		"manifest", m.ID,
		"entries", len(snap),
		"success", success,
		"failures", len(report.Failures),
	)

	if !success && opts.RaiseErr {
		return false, report, &ValidationFailed{Report: report}
	}
	return success, report, nil
}

// ValidatePath resolves the manifest reference, walks target and validates
// the resulting snapshot.
func ValidatePath(ctx context.Context, target, manifestRef string, opts Options) (bool, Report, error) {
	m, err := LoadManifest(manifestRef, opts)
	if err != nil {
		return false, Report{}, err
	}

	snap, err := snapshot.Build(ctx, target, opts.Snapshot...)
	if err != nil {
		return false, Report{}, err
	}

	ok, report, err := Validate(snap, m, opts)
	report.Target = target
	var vf *ValidationFailed
	if errors.As(err, &vf) {
		vf.Report.Target = target
	}
	return ok, report, err
}

// LoadManifest resolves and loads a manifest reference the way ValidatePath
// does.
func LoadManifest(ref string, opts Options) (*manifest.Manifest, error) {
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(nil)
	}
	return reg.Load(ref, manifest.WithDefaultQuery(opts.DefaultQuery))
}
