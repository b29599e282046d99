package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/plan"
)

// DescriptionFile is written into the package folder by Describe.
const DescriptionFile = "package.json"

// RequirementChecker confirms a required package is available before the
// build is configured.
type RequirementChecker interface {
	Check(req plan.Requirement) error
}

// PackageStore finds installed packages laid out as
// <Root>/<name>/<version>/package.json.
type PackageStore struct {
	Root string
}

// Path is the package folder of req.
func (s PackageStore) Path(req plan.Requirement) string {
	return filepath.Join(s.Root, req.Name, req.Version)
}

// Check implements RequirementChecker.
func (s PackageStore) Check(req plan.Requirement) error {
	path := filepath.Join(s.Path(req), DescriptionFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s (looked in %s)", rerrors.ErrRequirementMissing, req, s.Path(req))
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", rerrors.ErrRequirementMissing, req, err)
	}

	var desc plan.PackageDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return fmt.Errorf("%w: %s: corrupt %s: %v", rerrors.ErrRequirementMissing, req, DescriptionFile, err)
	}
	if desc.Name != req.Name || desc.Version != req.Version {
		return fmt.Errorf("%w: %s: found %s/%s", rerrors.ErrRequirementMissing, req, desc.Name, desc.Version)
	}
	return nil
}

// Publish copies a description into the store so dependents can find it.
func (s PackageStore) Publish(desc plan.PackageDescription) (string, error) {
	dir := filepath.Join(s.Root, desc.Name, desc.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, DescriptionFile)
	return path, writeDescription(path, desc)
}

func writeDescription(path string, desc plan.PackageDescription) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func readDescription(path string) (*plan.PackageDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var desc plan.PackageDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}
