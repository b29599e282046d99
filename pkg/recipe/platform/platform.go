// Package platform describes the host and target a package is built for.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Operating system families, spelled the way package settings spell them.
const (
	Windows = "Windows"
	Linux   = "Linux"
	Macos   = "Macos"
	FreeBSD = "FreeBSD"
)

// Build configurations.
const (
	Debug          = "Debug"
	Release        = "Release"
	RelWithDebInfo = "RelWithDebInfo"
	MinSizeRel     = "MinSizeRel"
)

// VisualStudio is the compiler family whose runtime linkage is encoded in
// the compiler runtime setting.
const VisualStudio = "Visual Studio"

// Compiler identifies the toolchain.
type Compiler struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	Runtime string `yaml:"runtime,omitempty" json:"runtime,omitempty"`
}

// Facts are supplied at invocation time and never modified afterwards.
type Facts struct {
	OS        string   `yaml:"os" json:"os"`
	Arch      string   `yaml:"arch" json:"arch"`
	Compiler  Compiler `yaml:"compiler" json:"compiler"`
	BuildType string   `yaml:"build_type" json:"build_type"`
	// HostOS is the system running the build tool, which may differ
	// from OS when cross compiling.
	HostOS string `yaml:"host_os,omitempty" json:"host_os,omitempty"`
}

// Detect returns facts for the running host with a Release build type.
func Detect() Facts {
	osName := OSFamily(runtime.GOOS)
	return Facts{
		OS:        osName,
		Arch:      ArchName(runtime.GOARCH),
		Compiler:  DefaultCompiler(osName),
		BuildType: Release,
		HostOS:    osName,
	}
}

// OSFamily maps a GOOS value onto a settings OS name.
func OSFamily(goos string) string {
	switch goos {
	case "windows":
		return Windows
	case "linux":
		return Linux
	case "darwin":
		return Macos
	case "freebsd":
		return FreeBSD
	default:
		return goos
	}
}

// ArchName maps a GOARCH value onto a settings arch name.
func ArchName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	case "arm64":
		return "armv8"
	case "arm":
		return "armv7"
	default:
		return goarch
	}
}

// DefaultCompiler is the usual toolchain for an OS family.
func DefaultCompiler(osName string) Compiler {
	switch osName {
	case Windows:
		return Compiler{Name: VisualStudio, Runtime: "MD"}
	case Macos:
		return Compiler{Name: "apple-clang"}
	default:
		return Compiler{Name: "gcc"}
	}
}

// IsWindows reports whether the target OS is Windows.
func (f Facts) IsWindows() bool { return f.OS == Windows }

// IsHostWindows reports whether the build host is Windows. An empty HostOS
// falls back to the target OS.
func (f Facts) IsHostWindows() bool {
	if f.HostOS == "" {
		return f.IsWindows()
	}
	return f.HostOS == Windows
}

// IsDebug reports whether the build configuration is Debug.
func (f Facts) IsDebug() bool { return f.BuildType == Debug }

// IsVisualStudio reports whether the compiler is the Visual Studio toolchain.
func (f Facts) IsVisualStudio() bool { return f.Compiler.Name == VisualStudio }

// RuntimeLinkage parses the compiler runtime setting.
func (f Facts) RuntimeLinkage() RuntimeLinkage {
	return ParseRuntimeLinkage(f.Compiler.Runtime)
}

// Validate checks that the facts needed for planning are present.
func (f Facts) Validate() error {
	var missing []string
	if f.OS == "" {
		missing = append(missing, "os")
	}
	if f.Compiler.Name == "" {
		missing = append(missing, "compiler")
	}
	if f.BuildType == "" {
		missing = append(missing, "build_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("platform settings missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (f Facts) String() string {
	s := fmt.Sprintf("%s/%s %s", f.OS, f.Arch, f.Compiler.Name)
	if f.Compiler.Version != "" {
		s += " " + f.Compiler.Version
	}
	if f.Compiler.Runtime != "" {
		s += " (" + f.Compiler.Runtime + ")"
	}
	return s + " " + f.BuildType
}
