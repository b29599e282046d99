// Package compress registers the stream decompressors source archives may
// be wrapped in.
package compress

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"

	"github.com/provide-io/flavor/go/bullet3/pkg/archive/operations"
)

func init() {
	for _, c := range codecs {
		operations.Register(c)
	}
}

// codec adapts a stream decoder to operations.Decompressor.
type codec struct {
	id   operations.ID
	open func(r io.Reader) (io.ReadCloser, error)
}

var codecs = []codec{
	{id: operations.Gzip, open: func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	}},
	{id: operations.Bzip2, open: func(r io.Reader) (io.ReadCloser, error) {
		return bzip2.NewReader(r, &bzip2.ReaderConfig{})
	}},
	{id: operations.Xz, open: func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	}},
}

func (c codec) ID() operations.ID { return c.id }

func (c codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	rc, err := c.open(r)
	if err != nil {
		return nil, fmt.Errorf("creating %s reader: %w", c.id, err)
	}
	return rc, nil
}
