package plan

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
)

// PythonRequirement is needed to build pybullet.
const PythonRequirement = "cpython/3.7.2@bincrafters/stable"

// Requirement is a dependency on another package: name/version@user/channel.
type Requirement struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	User    string `json:"user,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// ParseRequirement parses a "name/version[@user/channel]" reference.
func ParseRequirement(ref string) (Requirement, error) {
	main, qualifier, hasQualifier := strings.Cut(strings.TrimSpace(ref), "@")
	name, version, ok := strings.Cut(main, "/")
	if !ok || name == "" || version == "" {
		return Requirement{}, fmt.Errorf("invalid requirement %q: want name/version[@user/channel]", ref)
	}
	if _, err := semver.NewVersion(version); err != nil {
		return Requirement{}, fmt.Errorf("invalid requirement %q: %w", ref, err)
	}

	req := Requirement{Name: name, Version: version}
	if hasQualifier {
		user, channel, ok := strings.Cut(qualifier, "/")
		if !ok || user == "" || channel == "" {
			return Requirement{}, fmt.Errorf("invalid requirement %q: qualifier must be user/channel", ref)
		}
		req.User, req.Channel = user, channel
	}
	return req, nil
}

// MustParseRequirement is ParseRequirement for constants.
func MustParseRequirement(ref string) Requirement {
	req, err := ParseRequirement(ref)
	if err != nil {
		panic(err)
	}
	return req
}

func (r Requirement) String() string {
	s := r.Name + "/" + r.Version
	if r.User != "" {
		s += "@" + r.User + "/" + r.Channel
	}
	return s
}

// Requirements lists the packages the option set depends on.
func Requirements(opts options.FeatureOptions) []Requirement {
	var reqs []Requirement
	if opts.Bool(recipe.OptPybullet) {
		reqs = append(reqs, MustParseRequirement(PythonRequirement))
	}
	return reqs
}
