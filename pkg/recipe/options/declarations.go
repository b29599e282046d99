// Package options holds the feature options of a recipe: their declarations,
// overrides from the invoking environment and the resolved, read-only set.
package options

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
)

const (
	valueTrue  = "True"
	valueFalse = "False"
)

var boolValues = []string{valueTrue, valueFalse}

// Declaration declares one option with its allowed values and default.
type Declaration struct {
	Name    string
	Allowed []string
	Default string
	Help    string
}

// Bool declares a boolean option.
func Bool(name string, def bool, help string) Declaration {
	return Declaration{
		Name:    name,
		Allowed: boolValues,
		Default: FormatBool(def),
		Help:    help,
	}
}

// Enum declares an option restricted to a fixed set of values.
func Enum(name string, allowed []string, def string, help string) Declaration {
	return Declaration{
		Name:    name,
		Allowed: slices.Clone(allowed),
		Default: def,
		Help:    help,
	}
}

// IsBool reports whether the declaration is a boolean option.
func (d Declaration) IsBool() bool {
	return slices.Equal(d.Allowed, boolValues)
}

// Normalize validates raw against the allowed values and returns its
// canonical spelling. Booleans accept anything strconv.ParseBool does.
func (d Declaration) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if d.IsBool() {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s=%q is not a boolean", rerrors.ErrInvalidOptionValue, d.Name, raw)
		}
		return FormatBool(b), nil
	}
	if !slices.Contains(d.Allowed, raw) {
		return "", fmt.Errorf("%w: %s=%q not in %v", rerrors.ErrInvalidOptionValue, d.Name, raw, d.Allowed)
	}
	return raw, nil
}

// Declarations is an ordered option table.
type Declarations []Declaration

// Lookup finds a declaration by name.
func (ds Declarations) Lookup(name string) (Declaration, bool) {
	for _, d := range ds {
		if d.Name == name {
			return d, true
		}
	}
	return Declaration{}, false
}

// Names returns option names in declaration order.
func (ds Declarations) Names() []string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}

// FormatBool spells a boolean option value.
func FormatBool(b bool) string {
	if b {
		return valueTrue
	}
	return valueFalse
}
