// Package archive unpacks source archives using the registered operations.
package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/bullet3/pkg/archive/operations"
	_ "github.com/provide-io/flavor/go/bullet3/pkg/archive/operations/bundle"
	_ "github.com/provide-io/flavor/go/bullet3/pkg/archive/operations/compress"
)

// Extract unpacks the archive at path below dest. The operation chain is
// taken from the file name.
func Extract(path, dest string, logger hclog.Logger) error {
	chain, err := operations.ChainForFile(path)
	if err != nil {
		return err
	}
	return ExtractChain(path, dest, chain, logger)
}

// ExtractChain unpacks path by reversing chain. The first operation must be
// a bundle; the rest are undone from last to first.
func ExtractChain(path, dest string, chain []operations.ID, logger hclog.Logger) error {
	if len(chain) == 0 {
		return fmt.Errorf("empty operation chain for %s", path)
	}

	bundleOp, err := operations.Get(chain[0])
	if err != nil {
		return err
	}
	unpacker, ok := bundleOp.(operations.Unpacker)
	if !ok {
		return fmt.Errorf("operation %s cannot unpack", chain[0])
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	logger.Debug("📂 Extracting archive", "path", path, "dest", dest, "operations", operations.OperationsToString(chain))

	var stream io.Reader = file
	for i := len(chain) - 1; i >= 1; i-- {
		op, err := operations.Get(chain[i])
		if err != nil {
			return err
		}
		dec, ok := op.(operations.Decompressor)
		if !ok {
			return fmt.Errorf("operation %s is not a decompressor", chain[i])
		}
		rc, err := dec.NewReader(stream)
		if err != nil {
			return fmt.Errorf("reversing %s: %w", chain[i], err)
		}
		defer rc.Close()
		stream = rc
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if err := unpacker.Unpack(stream, dest); err != nil {
		return fmt.Errorf("unpacking %s: %w", chain[0], err)
	}

	logger.Debug("✅ Archive extracted", "dest", dest)
	return nil
}
