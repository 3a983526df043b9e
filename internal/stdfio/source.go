// Package stdfio implements the File source collaborator (§6.3) and the
// byte-order detector (§4.1): opening a plain, gzip, or bzip2 STDF file,
// sequential reads with skip, reopen-to-rewind, and a size query used only
// to normalize the progress reporter's denominator.
package stdfio

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsnet/compress/bzip2"
)

// Kind identifies which decompression backend a Source wraps.
type Kind int

const (
	KindPlain Kind = iota
	KindGzip
	KindBzip2
)

// Source is the sequential-read STDF file handle used by the reader
// thread and the analyzer. It satisfies the reopen/skip contract of §6.3;
// random access within a pass is never required (Non-goal). The
// parametric reader (internal/parametric) does not use a Source: it
// reads previously indexed offsets from an *os.File with ReadAt after
// the first pass completes.
type Source struct {
	path string
	kind Kind
	f    *os.File
	r    io.Reader
}

// Open opens path, selecting the decompression backend from its
// extension: ".gz" uses compress/gzip, ".bz2" uses dsnet/compress/bzip2
// (stdlib compress/bzip2 is available, but the bzip2 path uses dsnet's
// reader — see DESIGN.md; the gzip path stays on the standard library).
// Anything else is treated as a plain, uncompressed STDF stream.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stdfio: open %q: %w", path, err)
	}

	s := &Source{path: path, f: f}
	if err := s.wrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) wrap() error {
	switch {
	case strings.HasSuffix(s.path, ".gz"):
		s.kind = KindGzip
		gz, err := gzip.NewReader(s.f)
		if err != nil {
			return fmt.Errorf("stdfio: gzip header %q: %w", s.path, err)
		}
		s.r = gz
	case strings.HasSuffix(s.path, ".bz2"):
		s.kind = KindBzip2
		bz, err := bzip2.NewReader(s.f, nil)
		if err != nil {
			return fmt.Errorf("stdfio: bzip2 header %q: %w", s.path, err)
		}
		s.r = bz
	default:
		s.kind = KindPlain
		s.r = s.f
	}
	return nil
}

// Read reads exactly len(buf) bytes, or returns io.ErrUnexpectedEOF /
// io.EOF on a short read — callers (the reader thread) translate any
// error here into ingesterr.ErrEOF or ErrOSFail as appropriate.
func (s *Source) Read(buf []byte) error {
	_, err := io.ReadFull(s.r, buf)
	return err
}

// Skip discards n bytes from the stream without allocating a buffer for
// them (used for record types the reader thread does not enqueue).
func (s *Source) Skip(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, s.r, int64(n))
	return err
}

// Reopen rewinds the source to the beginning of the file, re-establishing
// any decompression wrapper. Used once, after the byte-order detector has
// read the first header, to begin the real pass from offset zero.
func (s *Source) Reopen() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("stdfio: reopen %q: %w", s.path, err)
	}
	return s.wrap()
}

// Close releases the underlying file descriptor.
func (s *Source) Close() error {
	return s.f.Close()
}

// Kind reports which decompression backend is in use.
func (s *Source) Kind() Kind { return s.kind }

// Size returns the denominator the progress reporter should use (§4.7),
// delegating to FileSize.
func (s *Source) Size() (int64, error) {
	return FileSize(s.f, s.kind)
}
