package constraint

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

var logger = logging.Get("constraint")

// EvalStage identifies where an eval constraint failed.
type EvalStage string

const (
	StageDisabled EvalStage = "disabled"
	StageCompile  EvalStage = "compile"
	StageRuntime  EvalStage = "runtime"
)

var (
	// ErrEvalDisabled is returned when eval is used without being enabled.
	ErrEvalDisabled = errors.New("eval constraints are disabled; enable allow_eval to use them")

	// ErrNoFunctionName is returned when the source names no predicate.
	ErrNoFunctionName = errors.New("could not find a function name")

	// ErrUnknownPredicate is returned when the named predicate is not registered.
	ErrUnknownPredicate = errors.New("unknown predicate")
)

// EvalError wraps a failure of an eval constraint.
type EvalError struct {
	Constraint string
	Stage      EvalStage

	// CauseType is the Go type of the underlying error or panic value.
	CauseType string
	Err       error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval constraint %q failed at %s stage: %s: %v", e.Constraint, e.Stage, e.CauseType, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

func newEvalError(name string, stage EvalStage, err error) *EvalError {
	return &EvalError{Constraint: name, Stage: stage, CauseType: fmt.Sprintf("%T", err), Err: err}
}

// Eval runs a registered predicate against the rule's entries.
//
// Source names the predicate. It may be a bare identifier ("unique_names")
// or a function header such as "def unique_names(snapshot):" or
// "func unique_names(s Snapshot) bool". Only the name is used; no code from
// the manifest is executed. Predicates are still arbitrary Go code, so only
// register ones that are safe to run against untrusted filesets.
type Eval struct {
	Source string
	Label  string
}

func (e *Eval) Name() string { return labelOr(e.Label, NameEval) }
func (e *Eval) Value() any   { return e.Source }
func (*Eval) sealed()        {}

var (
	funcHeader = regexp.MustCompile(`(?m)^\s*(?:def|func)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// FunctionName extracts the predicate name from source.
func FunctionName(source string) (string, error) {
	if m := funcHeader.FindStringSubmatch(source); m != nil {
		return m[1], nil
	}
	if s := strings.TrimSpace(source); identifier.MatchString(s) {
		return s, nil
	}
	return "", ErrNoFunctionName
}

// Validate implements Constraint.
func (e *Eval) Validate(env Env, snap snapshot.Snapshot) (Result, error) {
	if !env.AllowEval {
		return Result{}, newEvalError(e.Name(), StageDisabled, ErrEvalDisabled)
	}

	fnName, err := FunctionName(e.Source)
	if err != nil {
		return Result{}, newEvalError(e.Name(), StageCompile, err)
	}

	registry := env.Predicates
	if registry == nil {
		registry = Builtins()
	}
	pred, ok := registry.Lookup(fnName)
	if !ok {
		return Result{}, newEvalError(e.Name(), StageCompile, fmt.Errorf("%w: %q", ErrUnknownPredicate, fnName))
	}

	logger.Debug("running predicate", "name", fnName, "entries", len(snap))

	passed, evalErr := callPredicate(pred, snap)
	if evalErr != nil {
		evalErr.Constraint = e.Name()
		return Result{}, evalErr
	}

	res := Result{Status: passed, Context: Context{Snapshot: snap, Constraint: e}}
	if !passed {
		res.Message = fmt.Sprintf("Predicate %q failed on %d entries", fnName, len(snap))
	}
	return res, nil
}

// callPredicate runs pred, converting a panic into a runtime EvalError.
func callPredicate(pred Predicate, snap snapshot.Snapshot) (passed bool, evalErr *EvalError) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			evalErr = &EvalError{Stage: StageRuntime, CauseType: fmt.Sprintf("%T", r), Err: fmt.Errorf("panic: %w", cause)}
		}
	}()

	passed, err := pred(snap)
	if err != nil {
		return false, newEvalError("", StageRuntime, err)
	}
	return passed, nil
}
