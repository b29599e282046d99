package fetch

import "time"

// =================================
// File permissions defaults
// =================================
const (
	FilePerms = 0o644
	DirPerms  = 0o755
)

// =================================
// Disk defaults
// =================================
const (
	// Source tarballs expand well beyond their compressed size.
	DiskSpaceMultiplier = 4
)

// =================================
// Network defaults
// =================================
const (
	DefaultHTTPTimeout  = 5 * time.Minute
	DefaultHTTPRetries  = 3
	DefaultRetryWaitMin = 1 * time.Second
	DefaultRetryWaitMax = 30 * time.Second
	DefaultLockTimeout  = 10 * time.Minute
)
