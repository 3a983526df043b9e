package stdfio

import (
	"encoding/binary"
	"fmt"

	"github.com/foundry/stdfingest/internal/ingesterr"
)

// Header is the 4-byte STDF record header: payload length, record type,
// and record subtype (§3.1).
type Header struct {
	RecLen uint16
	RecTyp uint8
	RecSub uint8
}

// DetectByteOrder reads the first 4-byte header from src and determines
// whether the file's multi-byte integers were written in the host's
// native byte order (§4.1). The first record of a conforming file is FAR
// (rec_typ=0, rec_sub=10); FAR's payload is always 2 bytes. If rec_len
// reads as 2 the file matches host order; if it reads as 512 (2 with
// bytes swapped) the file needs swapping. Any other value means the file
// is not a conforming STDF stream.
//
// src is rewound via Reopen before DetectByteOrder returns, so the reader
// thread that follows sees the FAR record again from offset zero.
func DetectByteOrder(src *Source) (needSwap bool, order binary.ByteOrder, err error) {
	buf := make([]byte, 4)
	if err := src.Read(buf); err != nil {
		return false, nil, fmt.Errorf("stdfio: read first header: %w: %w", ingesterr.ErrOSFail, err)
	}

	recLenNative := binary.NativeEndian.Uint16(buf[0:2])
	recTyp := buf[2]
	recSub := buf[3]

	if recTyp != 0 || recSub != 10 {
		return false, nil, ingesterr.ErrInvalidSTDF
	}

	switch recLenNative {
	case 2:
		needSwap = false
	case 512:
		needSwap = true
	default:
		return false, nil, ingesterr.ErrInvalidSTDF
	}

	if err := src.Reopen(); err != nil {
		return false, nil, fmt.Errorf("stdfio: rewind after detection: %w: %w", ingesterr.ErrOSFail, err)
	}

	if needSwap {
		order = swappedNativeOrder()
	} else {
		order = binary.NativeEndian
	}
	return needSwap, order, nil
}

// swappedNativeOrder returns the byte order opposite the host's native
// order: if the host is little-endian this is BigEndian and vice versa.
func swappedNativeOrder() binary.ByteOrder {
	var probe uint16 = 1
	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, probe)
	if buf[0] == 1 {
		// Host is little-endian; swapped order is big-endian.
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// HumanEndianness returns "little-endian" or "big-endian" describing the
// on-wire integer encoding actually used by the file, derived from
// (host-is-little-endian XOR need-swap) per §4.1.
func HumanEndianness(needSwap bool) string {
	hostLittle := isHostLittleEndian()
	fileLittle := hostLittle != needSwap
	if fileLittle {
		return "little-endian"
	}
	return "big-endian"
}

func isHostLittleEndian() bool {
	var probe uint16 = 1
	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, probe)
	return buf[0] == 1
}

// ReadHeader reads and decodes a 4-byte record header using order,
// swapping RecLen if the detector determined the file needs it. order
// must already be the effective order (binary.NativeEndian or its
// opposite) returned by DetectByteOrder; RecTyp/RecSub are single bytes
// and are never swapped.
func ReadHeader(buf [4]byte, order binary.ByteOrder) Header {
	return Header{
		RecLen: order.Uint16(buf[0:2]),
		RecTyp: buf[2],
		RecSub: buf[3],
	}
}
