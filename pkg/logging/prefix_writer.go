package logging

import (
	"bytes"
	"io"

	"github.com/hashicorp/go-hclog"
)

// LineWriter buffers writes and hands each complete line to emit.
type LineWriter struct {
	emit   func(line []byte) error
	buffer bytes.Buffer
}

// NewLineWriter creates a LineWriter calling emit once per line, newline included.
func NewLineWriter(emit func(line []byte) error) *LineWriter {
	return &LineWriter{emit: emit}
}

// Write implements io.Writer. Incomplete trailing data stays buffered
// until more data or Flush arrives.
func (lw *LineWriter) Write(p []byte) (int, error) {
	n := len(p)
	if _, err := lw.buffer.Write(p); err != nil {
		return 0, err
	}

	for {
		idx := bytes.IndexByte(lw.buffer.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx+1)
		copy(line, lw.buffer.Next(idx+1))
		if err := lw.emit(line); err != nil {
			return 0, err
		}
	}

	return n, nil
}

// Flush emits any buffered partial line.
func (lw *LineWriter) Flush() error {
	if lw.buffer.Len() == 0 {
		return nil
	}
	line := append([]byte(nil), lw.buffer.Bytes()...)
	lw.buffer.Reset()
	return lw.emit(line)
}

// PrefixWriter wraps an io.Writer and adds a prefix to each line.
type PrefixWriter struct {
	*LineWriter
}

// NewPrefixWriter creates a new PrefixWriter.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{
		LineWriter: NewLineWriter(func(line []byte) error {
			if _, err := w.Write([]byte(prefix)); err != nil {
				return err
			}
			_, err := w.Write(line)
			return err
		}),
	}
}

// NewLogWriter returns a writer that logs every line of output at the given
// level, tagged with stream. Used for subprocess stdout/stderr.
func NewLogWriter(logger hclog.Logger, level hclog.Level, stream string) *LineWriter {
	return NewLineWriter(func(line []byte) error {
		text := string(bytes.TrimRight(line, "\r\n"))
		if text == "" {
			return nil
		}
		logger.Log(level, text, "stream", stream)
		return nil
	})
}
