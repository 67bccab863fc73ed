package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// InvalidManifestError reports a manifest that fails the structural check or
// cannot be parsed or built.
type InvalidManifestError struct {
	// Path is the manifest file, when the manifest was loaded from one.
	Path string
	Err  error
}

func (e *InvalidManifestError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid manifest: %v", e.Err)
	}
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *InvalidManifestError) Unwrap() error {
	return e.Err
}

// Diagnostics lists the structural check failures as "field: message"
// lines, nested fields joined with dots. Errors that did not come from the
// structural check produce a single line.
func (e *InvalidManifestError) Diagnostics() []string {
	var verrs validation.Errors
	if !errors.As(e.Err, &verrs) {
		return []string{e.Err.Error()}
	}
	var out []string
	flatten("", verrs, &out)
	sort.Strings(out)
	return out
}

func flatten(prefix string, errs validation.Errors, out *[]string) {
	for key, err := range errs {
		field := key
		if prefix != "" {
			field = prefix + "." + key
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			flatten(field, nested, out)
			continue
		}
		*out = append(*out, field+": "+err.Error())
	}
}

// Check validates the structure of a decoded manifest document. Rule
// contents beyond their shape are checked when the rules are built.
func Check(m map[string]any) error {
	err := validation.Validate(m,
		validation.Required.Error("document is empty"),
		validation.Map(
			validation.Key("id", validation.By(isString)).Optional(),
			validation.Key("version", validation.NotNil, validation.By(isScalar)),
			validation.Key("description", validation.Required, validation.By(isString)),
			validation.Key("uri", validation.By(isString)).Optional(),
			validation.Key("rules",
				validation.Required,
				validation.By(isList),
				validation.Each(validation.By(isRule)),
			),
		),
	)
	if err != nil {
		return &InvalidManifestError{Err: err}
	}
	return nil
}

func isString(value any) error {
	if value == nil {
		return nil
	}
	if _, ok := value.(string); !ok {
		return fmt.Errorf("must be a string, not %T", value)
	}
	return nil
}

func isScalar(value any) error {
	switch value.(type) {
	case nil, string, int, int64, uint64, float64:
		return nil
	default:
		return fmt.Errorf("must be a string or number, not %T", value)
	}
}

func isList(value any) error {
	switch value.(type) {
	case nil, []any, []map[string]any:
		return nil
	default:
		return fmt.Errorf("must be a list, not %T", value)
	}
}

// isRule checks a rule's shape: a mapping with string metadata and at least
// one constraint key.
func isRule(value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("must be a mapping, not %T", value)
	}
	return validation.Validate(m, validation.Map(
		validation.Key("id", validation.By(isString)).Optional(),
		validation.Key("description", validation.By(isString)).Optional(),
		validation.Key("query", validation.By(isQuery)).Optional(),
	).AllowExtraKeys(), validation.By(hasConstraint))
}

func isQuery(value any) error {
	switch value.(type) {
	case nil, string, map[string]any:
		return nil
	default:
		return fmt.Errorf("must be a string or a mapping, not %T", value)
	}
}

func hasConstraint(value any) error {
	m, _ := value.(map[string]any)
	var names []string
	for k := range m {
		if k != "id" && k != "description" && k != "query" {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return errors.New("must declare at least one constraint")
	}
	return nil
}

// Summary joins the diagnostics of err into one line, or returns err's
// message when it is not an *InvalidManifestError.
func Summary(err error) string {
	var ie *InvalidManifestError
	if !errors.As(err, &ie) {
		return err.Error()
	}
	return strings.Join(ie.Diagnostics(), "; ")
}
