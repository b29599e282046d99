package options

import (
	_ "crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/opencontainers/go-digest"

	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// ValidationLevel controls how inconsistent option combinations are treated.
type ValidationLevel string

const (
	// ValidationStrict rejects inconsistent combinations.
	ValidationStrict ValidationLevel = "strict"
	// ValidationRelaxed warns and turns the dependent option off.
	ValidationRelaxed ValidationLevel = "relaxed"
)

// ParseValidationLevel parses a level name; empty means strict.
func ParseValidationLevel(s string) (ValidationLevel, error) {
	switch ValidationLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", ValidationStrict:
		return ValidationStrict, nil
	case ValidationRelaxed:
		return ValidationRelaxed, nil
	default:
		return "", fmt.Errorf("unknown validation level %q", s)
	}
}

// Removal drops an option entirely for some configurations.
type Removal struct {
	Option string
	When   func(values Values, facts platform.Facts) bool
}

// Dependency states that Option may only be enabled when Requires is.
type Dependency struct {
	Option   string
	Requires string
}

// Rules are the cross-option invariants of a recipe.
type Rules struct {
	Removals     []Removal
	Dependencies []Dependency
}

// Values is a read-only view over option values used while resolving.
type Values interface {
	Bool(name string) bool
	Value(name string) string
}

// Set collects defaults and overrides before resolution.
type Set struct {
	decls  Declarations
	values map[string]string
}

// NewSet starts from the declared defaults.
func NewSet(decls Declarations) *Set {
	values := make(map[string]string, len(decls))
	for _, d := range decls {
		values[d.Name] = d.Default
	}
	return &Set{decls: decls, values: values}
}

// Set overrides one option.
func (s *Set) Set(name, value string) error {
	d, ok := s.decls.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", rerrors.ErrUnknownOption, name)
	}
	v, err := d.Normalize(value)
	if err != nil {
		return err
	}
	s.values[name] = v
	return nil
}

// Apply parses a "name=value" assignment. A "<package>:" prefix is accepted
// and stripped.
func (s *Set) Apply(assignment string) error {
	name, value, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("%w: %q is not name=value", rerrors.ErrInvalidOptionValue, assignment)
	}
	if _, after, found := strings.Cut(name, ":"); found {
		name = after
	}
	return s.Set(strings.TrimSpace(name), value)
}

// ApplyAll applies assignments in order.
func (s *Set) ApplyAll(assignments []string) error {
	for _, a := range assignments {
		if err := s.Apply(a); err != nil {
			return err
		}
	}
	return nil
}

// Merge applies a map of overrides in sorted key order.
func (s *Set) Merge(overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Set(k, overrides[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) Bool(name string) bool { return s.values[name] == valueTrue }
func (s *Set) Value(name string) string { return s.values[name] }

// Resolve applies the removal rules for facts, validates dependencies and
// freezes the result.
func (s *Set) Resolve(facts platform.Facts, rules Rules, level ValidationLevel, logger hclog.Logger) (FeatureOptions, error) {
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}

	removed := make(map[string]bool)
	for _, r := range rules.Removals {
		if r.When(s, facts) {
			removed[r.Option] = true
			delete(values, r.Option)
			logger.Debug("⚙️ Option removed for configuration", "option", r.Option, "platform", facts.String())
		}
	}

	for _, dep := range rules.Dependencies {
		if values[dep.Option] != valueTrue || values[dep.Requires] == valueTrue {
			continue
		}
		invalid := &rerrors.InvalidOptionCombination{Option: dep.Option, Requires: dep.Requires}
		if level != ValidationRelaxed {
			logger.Error("❌ Invalid option combination", "option", dep.Option, "requires", dep.Requires)
			return FeatureOptions{}, invalid
		}
		logger.Warn("⚠️ Invalid option combination, disabling option", "option", dep.Option, "requires", dep.Requires)
		values[dep.Option] = valueFalse
	}

	var decls Declarations
	for _, d := range s.decls {
		if !removed[d.Name] {
			decls = append(decls, d)
		}
	}

	return FeatureOptions{decls: decls, values: values}, nil
}

// FeatureOptions is the resolved option set. Every present option has
// exactly one value; removed options are absent.
type FeatureOptions struct {
	decls  Declarations
	values map[string]string
}

// Has reports whether the option survived resolution.
func (o FeatureOptions) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

// Value returns the option value, or "" when absent.
func (o FeatureOptions) Value(name string) string { return o.values[name] }

// Bool returns the option as a boolean; absent options are false.
func (o FeatureOptions) Bool(name string) bool { return o.values[name] == valueTrue }

// Names returns present option names in declaration order.
func (o FeatureOptions) Names() []string { return o.decls.Names() }

// Pairs renders present options as name=value in declaration order.
func (o FeatureOptions) Pairs() []string {
	pairs := make([]string, 0, len(o.decls))
	for _, d := range o.decls {
		pairs = append(pairs, d.Name+"="+o.values[d.Name])
	}
	return pairs
}

// Map returns a copy of the option values.
func (o FeatureOptions) Map() map[string]string {
	m := make(map[string]string, len(o.values))
	for k, v := range o.values {
		m[k] = v
	}
	return m
}

// Fingerprint identifies this option snapshot.
func (o FeatureOptions) Fingerprint() digest.Digest {
	return digest.FromString(strings.Join(o.Pairs(), "\n"))
}

func (o FeatureOptions) String() string {
	return strings.Join(o.Pairs(), " ")
}
