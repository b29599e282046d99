// Package fetch materializes a package's upstream source: it resolves where
// the archive lives, acquires it into a local cache, verifies it and moves
// the extracted tree to the canonical source subfolder.
package fetch

import (
	_ "crypto/sha256"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/opencontainers/go-digest"

	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
)

// ArchiveSuffix is the extension of upstream source snapshots.
const ArchiveSuffix = ".tar.gz"

// Upstream locates a project on a code host.
type Upstream struct {
	Host  string
	Owner string
	Repo  string
}

// ArchiveURL returns <host>/<owner>/<repo>/archive/<version>.tar.gz.
func (u Upstream) ArchiveURL(version string) string {
	return fmt.Sprintf("%s/%s/%s/archive/%s%s", strings.TrimRight(u.Host, "/"), u.Owner, u.Repo, version, ArchiveSuffix)
}

// Source is everything needed to acquire one version.
type Source struct {
	Name         string
	Version      string
	URL          string
	Digest       digest.Digest
	CachePath    string
	ExtractedDir string
}

// Resolver maps versions to sources. It is immutable once built.
type Resolver struct {
	name      string
	upstream  Upstream
	checksums map[string]digest.Digest
	cacheRoot string
}

// NewResolver builds a resolver. checksums maps a version, spelled as the
// upstream tags it, to the hex sha256 of its archive.
func NewResolver(name string, upstream Upstream, checksums map[string]string, cacheRoot string) (*Resolver, error) {
	table := make(map[string]digest.Digest, len(checksums))
	for version, hex := range checksums {
		d := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(hex))
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("checksum for %s %s: %w", name, version, err)
		}
		table[version] = d
	}
	return &Resolver{
		name:      name,
		upstream:  upstream,
		checksums: table,
		cacheRoot: cacheRoot,
	}, nil
}

// Resolve returns the source for version. It has no side effects.
func (r *Resolver) Resolve(version string) (Source, error) {
	tag, d, err := r.lookup(version)
	if err != nil {
		return Source{}, err
	}
	base := fmt.Sprintf("%s-%s", r.name, tag)
	return Source{
		Name:         r.name,
		Version:      tag,
		URL:          r.upstream.ArchiveURL(tag),
		Digest:       d,
		CachePath:    filepath.Join(r.cacheRoot, base+ArchiveSuffix),
		ExtractedDir: base,
	}, nil
}

// Versions lists the versions with a known checksum.
func (r *Resolver) Versions() []string {
	versions := make([]string, 0, len(r.checksums))
	for v := range r.checksums {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// lookup accepts either the exact tag or any semver-equal spelling
// ("2.88.0" finds "2.88").
func (r *Resolver) lookup(version string) (string, digest.Digest, error) {
	if d, ok := r.checksums[version]; ok {
		return version, d, nil
	}
	want, err := semver.NewVersion(version)
	if err == nil {
		for _, tag := range r.Versions() {
			have, err := semver.NewVersion(tag)
			if err == nil && have.Equal(want) {
				return tag, r.checksums[tag], nil
			}
		}
	}
	return "", "", fmt.Errorf("%w: %s %s", rerrors.ErrUnknownVersion, r.name, version)
}
