package operations

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Named chains, in the order the operations were applied when the archive
// was produced.
var namedChains = map[string][]ID{
	"tar":     {Tar},
	"tar.gz":  {Tar, Gzip},
	"tar.bz2": {Tar, Bzip2},
	"tar.xz":  {Tar, Xz},
	"tgz":     {Tar, Gzip},
	"tbz2":    {Tar, Bzip2},
	"txz":     {Tar, Xz},
}

// StringToOperations parses a chain name such as "tar.gz".
func StringToOperations(name string) ([]ID, error) {
	ops, ok := namedChains[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown operation chain: %s", name)
	}
	return append([]ID(nil), ops...), nil
}

// ChainForFile picks the chain from the file name suffix. The longest
// matching suffix wins so "x.tar.gz" is not read as plain "gz".
func ChainForFile(path string) ([]ID, error) {
	base := strings.ToLower(filepath.Base(path))

	names := make([]string, 0, len(namedChains))
	for name := range namedChains {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		if strings.HasSuffix(base, "."+name) {
			return StringToOperations(name)
		}
	}
	return nil, fmt.Errorf("no operation chain for %s", filepath.Base(path))
}

// OperationsToString renders a chain as "tar|gzip".
func OperationsToString(ops []ID) string {
	if len(ops) == 0 {
		return None.String()
	}
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.String()
	}
	return strings.Join(names, "|")
}
