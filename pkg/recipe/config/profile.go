package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

// Profile pins the option overrides and platform settings of one build.
type Profile struct {
	Options  map[string]string `yaml:"options,omitempty"`
	Settings platform.Facts    `yaml:"settings"`
}

// DefaultProfile has no overrides and the detected host settings.
func DefaultProfile() *Profile {
	return &Profile{Settings: platform.Detect()}
}

func (p *Profile) fillDefaults() {
	detected := platform.Detect()
	s := &p.Settings
	if s.OS == "" {
		s.OS = detected.OS
	}
	if s.Arch == "" {
		s.Arch = detected.Arch
	}
	if s.Compiler.Name == "" {
		s.Compiler = platform.DefaultCompiler(s.OS)
	}
	if s.BuildType == "" {
		s.BuildType = platform.Release
	}
	if s.HostOS == "" {
		s.HostOS = detected.HostOS
	}
}

// LoadProfile reads a YAML profile. Settings it leaves out take the detected
// host values; a profile naming an OS but no compiler gets that OS's usual
// compiler. Unknown keys are rejected.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile document.
func ParseProfile(data []byte) (*Profile, error) {
	profile := &Profile{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(profile); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	profile.fillDefaults()
	return profile, nil
}

// Save writes the profile as YAML.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
