package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/provide-io/flavor/go/bullet3/pkg/archive/operations"
)

func init() {
	operations.Register(Tar{})
}

// ErrUnsafePath is returned for entries that would land outside dest.
var ErrUnsafePath = errors.New("tar entry escapes destination")

// Tar unpacks POSIX tar streams.
type Tar struct{}

// ID implements operations.Operation.
func (Tar) ID() operations.ID { return operations.Tar }

// Unpack extracts every entry of the archive below dest. Global pax headers
// (GitHub archives carry the commit id there) are skipped.
func (Tar) Unpack(input io.Reader, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}
	tr := tar.NewReader(input)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}

		switch header.Typeflag {
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			continue
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}
		if target == filepath.Clean(dest) {
			continue
		}
		// Links extracted earlier may redirect the parent outside dest.
		parent, err := resolveInside(root, filepath.Dir(target))
		if err != nil {
			return fmt.Errorf("%w: %s", err, header.Name)
		}
		target = filepath.Join(parent, filepath.Base(target))
		if err := removeSymlink(target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(header)); err != nil {
				return fmt.Errorf("creating directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, header); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(root, target, header); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := safeJoin(dest, header.Linkname)
			if err != nil {
				return err
			}
			if source, err = resolveInside(root, source); err != nil {
				return fmt.Errorf("%w: %s -> %s", err, header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("linking %s: %w", header.Name, err)
			}
		default:
			// Devices and fifos have no place in a source tree.
			continue
		}
	}
}

func writeFile(target string, r io.Reader, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", header.Name, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(header))
	if err != nil {
		return fmt.Errorf("creating %s: %w", header.Name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", header.Name, err)
	}
	return out.Close()
}

// writeSymlink creates target after checking that the link, resolved from
// its real parent folder, stays below root.
func writeSymlink(root, target string, header *tar.Header) error {
	linkTarget := header.Linkname
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, header.Name, linkTarget)
	}
	if !within(root, filepath.Join(filepath.Dir(target), filepath.FromSlash(linkTarget))) {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, header.Name, linkTarget)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.Symlink(linkTarget, target); err != nil {
		return fmt.Errorf("creating symlink %s: %w", header.Name, err)
	}
	return nil
}

func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !within(dest, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveInside follows the symlinks of the deepest existing ancestor of
// path and fails unless the result is still below root. root must be a
// resolved path.
func resolveInside(root, path string) (string, error) {
	existing, rest := path, ""
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", ErrUnsafePath
	}
	resolved = filepath.Join(resolved, rest)
	if !within(root, resolved) {
		return "", ErrUnsafePath
	}
	return resolved, nil
}

// removeSymlink drops a link left at target by an earlier entry so that
// writing target never follows it.
func removeSymlink(target string) error {
	info, err := os.Lstat(target)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("replacing symlink %s: %w", target, err)
	}
	return nil
}

func fileMode(header *tar.Header) os.FileMode {
	mode := os.FileMode(header.Mode).Perm()
	if mode == 0 {
		mode = 0o644
	}
	return mode | 0o200 // owner must be able to clean up
}

func dirMode(header *tar.Header) os.FileMode {
	mode := os.FileMode(header.Mode).Perm()
	if mode == 0 {
		mode = 0o755
	}
	return mode | 0o700
}
