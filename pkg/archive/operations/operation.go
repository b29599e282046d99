// Package operations registers the archive transformations the recipe can
// undo when unpacking a source tarball.
package operations

import (
	"fmt"
	"io"
)

// ID identifies one transformation applied when the archive was produced.
type ID uint8

// Bundles occupy 0x01-0x0F, compressions 0x10-0x2F.
const (
	None  ID = 0x00
	Tar   ID = 0x01
	Gzip  ID = 0x10
	Bzip2 ID = 0x13
	Xz    ID = 0x16
)

var idNames = map[ID]string{
	None:  "raw",
	Tar:   "tar",
	Gzip:  "gzip",
	Bzip2: "bzip2",
	Xz:    "xz",
}

func (id ID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown_%02x", uint8(id))
}

// Operation is implemented by every registered transformation.
type Operation interface {
	ID() ID
}

// Decompressor undoes a compression on a stream.
type Decompressor interface {
	Operation
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Unpacker writes the entries of a bundle below dest.
type Unpacker interface {
	Operation
	Unpack(r io.Reader, dest string) error
}

var registry = map[ID]Operation{}

// Register makes op available to Get. Implementations register from init.
func Register(op Operation) {
	registry[op.ID()] = op
}

// Get returns the registered implementation of id.
func Get(id ID) (Operation, error) {
	op, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("no implementation registered for %s", id)
	}
	return op, nil
}
