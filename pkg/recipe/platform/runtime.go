package platform

import "strings"

// RuntimeLinkage is the flavour of C runtime a compiler links against.
type RuntimeLinkage int

const (
	UnknownRuntime RuntimeLinkage = iota
	StaticRuntime
	DynamicRuntime
)

// dynamicRuntimeMarker appears in MD and MDd runtime settings. MT and MTd
// link the runtime statically.
const dynamicRuntimeMarker = "MD"

func (r RuntimeLinkage) String() string {
	switch r {
	case StaticRuntime:
		return "static"
	case DynamicRuntime:
		return "dynamic"
	default:
		return "unknown"
	}
}

// ParseRuntimeLinkage classifies a compiler runtime string. The marker match
// is case sensitive: "md" is not a dynamic runtime.
func ParseRuntimeLinkage(runtime string) RuntimeLinkage {
	switch {
	case runtime == "":
		return UnknownRuntime
	case strings.Contains(runtime, dynamicRuntimeMarker):
		return DynamicRuntime
	default:
		return StaticRuntime
	}
}
