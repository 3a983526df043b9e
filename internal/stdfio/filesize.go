package stdfio

import (
	"encoding/binary"
	"os"
)

// FileSize returns the denominator the progress reporter should divide
// bytes_consumed by (§4.7). For ".gz" inputs it reads the 4-byte ISIZE
// trailer (the uncompressed size modulo 2^32) by seeking to 4 bytes
// before the end of the compressed file; for ".bz2" and plain files it
// returns the size of the file on disk, which under-reports the true
// uncompressed size but is an acceptable approximation for progress only
// (§4.7, R2 scenario 6).
//
// Resolves the Open Question in spec.md §9: the original implementation
// used fd without checking that fopen succeeded. Here, an unopened
// (f == nil) handle reports size 0 rather than dereferencing it.
func FileSize(f *os.File, kind Kind) (int64, error) {
	if f == nil {
		return 0, nil
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	compressedSize := info.Size()

	if kind != KindGzip {
		return compressedSize, nil
	}

	if compressedSize < 4 {
		return compressedSize, nil
	}

	trailer := make([]byte, 4)
	if _, err := f.ReadAt(trailer, compressedSize-4); err != nil {
		return compressedSize, nil
	}
	return int64(binary.LittleEndian.Uint32(trailer)), nil
}
