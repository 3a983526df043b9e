package stdfio_test

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/foundry/stdfingest/internal/ingesterr"
	"github.com/foundry/stdfingest/internal/stdfio"
	"github.com/foundry/stdfingest/internal/stdftest"
)

func buildStream() []byte {
	return stdftest.NewBuilder(binary.NativeEndian).FAR(1).Bytes()
}

func TestOpenPlainReadSkipReopenClose(t *testing.T) {
	dir := t.TempDir()
	path, err := stdftest.WriteTempFile(dir, "plain-*.stdf", buildStream())
	if err != nil {
		t.Fatalf("WriteTempFile: %v", err)
	}

	src, err := stdfio.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Kind() != stdfio.KindPlain {
		t.Fatalf("Kind() = %v, want KindPlain", src.Kind())
	}

	buf := make([]byte, 4)
	if err := src.Read(buf); err != nil {
		t.Fatalf("Read header: %v", err)
	}
	if err := src.Skip(2); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	if err := src.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	again := make([]byte, 4)
	if err := src.Read(again); err != nil {
		t.Fatalf("Read after Reopen: %v", err)
	}
	if !bytes.Equal(buf, again) {
		t.Fatalf("Reopen did not rewind to start: %v vs %v", buf, again)
	}

	size, err := src.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != int64(len(buildStream())) {
		t.Fatalf("Size() = %d, want %d", size, len(buildStream()))
	}
}

func TestOpenGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gz := gzip.NewWriter(f)
	raw := buildStream()
	if _, err := gz.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	src, err := stdfio.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Kind() != stdfio.KindGzip {
		t.Fatalf("Kind() = %v, want KindGzip", src.Kind())
	}

	buf := make([]byte, len(raw))
	if err := src.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, raw) {
		t.Fatal("decompressed bytes did not round-trip")
	}

	size, err := src.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != int64(len(raw)) {
		t.Fatalf("Size() = %d, want %d (ISIZE trailer)", size, len(raw))
	}
}

func TestOpenRejectsNonConformingHeader(t *testing.T) {
	dir := t.TempDir()
	path, err := stdftest.WriteTempFile(dir, "bad-*.stdf", []byte{0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("WriteTempFile: %v", err)
	}

	src, err := stdfio.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	_, _, err = stdfio.DetectByteOrder(src)
	if !errors.Is(err, ingesterr.ErrInvalidSTDF) {
		t.Fatalf("DetectByteOrder err = %v, want ErrInvalidSTDF", err)
	}
}

func TestDetectByteOrderNative(t *testing.T) {
	dir := t.TempDir()
	path, err := stdftest.WriteTempFile(dir, "native-*.stdf", buildStream())
	if err != nil {
		t.Fatalf("WriteTempFile: %v", err)
	}
	src, err := stdfio.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	needSwap, order, err := stdfio.DetectByteOrder(src)
	if err != nil {
		t.Fatalf("DetectByteOrder: %v", err)
	}
	if needSwap {
		t.Fatal("needSwap = true for a native-order stream")
	}
	if order != binary.NativeEndian {
		t.Fatal("order != binary.NativeEndian for a native-order stream")
	}

	// After detection the source must be rewound to offset zero so the
	// reader thread sees FAR again.
	hdr := make([]byte, 4)
	if err := src.Read(hdr); err != nil {
		t.Fatalf("Read after DetectByteOrder: %v", err)
	}
	if hdr[2] != 0 || hdr[3] != 10 {
		t.Fatalf("post-detect read did not return FAR header, got %v", hdr)
	}
}

func TestDetectByteOrderSwapped(t *testing.T) {
	swapped := oppositeOrder()
	dir := t.TempDir()
	stream := stdftest.NewBuilder(swapped).FAR(2).Bytes()
	path, err := stdftest.WriteTempFile(dir, "swapped-*.stdf", stream)
	if err != nil {
		t.Fatalf("WriteTempFile: %v", err)
	}
	src, err := stdfio.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	needSwap, _, err := stdfio.DetectByteOrder(src)
	if err != nil {
		t.Fatalf("DetectByteOrder: %v", err)
	}
	if !needSwap {
		t.Fatal("needSwap = false for a swapped-order stream")
	}
}

func TestFileSizeNilHandle(t *testing.T) {
	size, err := stdfio.FileSize(nil, stdfio.KindPlain)
	if err != nil {
		t.Fatalf("FileSize(nil) err = %v", err)
	}
	if size != 0 {
		t.Fatalf("FileSize(nil) = %d, want 0", size)
	}
}

func oppositeOrder() binary.ByteOrder {
	var probe uint16 = 1
	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, probe)
	if buf[0] == 1 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
