// Package marker records completed package build stages on disk so a later
// invocation can pick up where an earlier one stopped.
package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoMarker is returned by Read when a stage has not completed in dir.
var ErrNoMarker = errors.New("stage marker not found")

// Marker is the completion record of one stage.
type Marker struct {
	Stage       string    `json:"stage"`
	Timestamp   time.Time `json:"timestamp"`
	PackageName string    `json:"package_name"`
	Version     string    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
}

// Path is the completion marker location for stage in dir.
func Path(dir, stage string) string {
	return filepath.Join(dir, "."+stage+".complete")
}

func incompletePath(dir, stage string) string {
	return filepath.Join(dir, "."+stage+".incomplete")
}

// Read returns the completion marker of stage in dir.
func Read(dir, stage string) (*Marker, error) {
	data, err := os.ReadFile(Path(dir, stage))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoMarker
	}
	if err != nil {
		return nil, err
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt %s marker: %w", stage, err)
	}
	return &m, nil
}

// IsComplete reports whether stage completed in dir for this package and
// option fingerprint, and the required subdirectories of dir exist.
func IsComplete(dir, stage, packageName, version, fingerprint string, required ...string) bool {
	m, err := Read(dir, stage)
	if err != nil {
		return false
	}
	if m.PackageName != packageName || m.Version != version || m.Fingerprint != fingerprint {
		return false
	}

	for _, sub := range required {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// MarkComplete records stage as complete in dir and clears any failure
// record.
func MarkComplete(dir, stage, packageName, version, fingerprint string) error {
	m := Marker{
		Stage:       stage,
		Timestamp:   time.Now().UTC(),
		PackageName: packageName,
		Version:     version,
		Fingerprint: fingerprint,
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	_ = os.Remove(incompletePath(dir, stage))
	return os.WriteFile(Path(dir, stage), data, 0o644)
}

// MarkIncomplete records a failed stage, removing its completion marker.
func MarkIncomplete(dir, stage, reason string) error {
	record := map[string]interface{}{
		"stage":     stage,
		"timestamp": time.Now().UTC(),
		"reason":    reason,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	_ = os.Remove(Path(dir, stage))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(incompletePath(dir, stage), data, 0o644)
}

// Clean removes both markers of stage from dir.
func Clean(dir, stage string) {
	_ = os.Remove(Path(dir, stage))
	_ = os.Remove(incompletePath(dir, stage))
}
