// Package stdftest builds small, in-memory-then-on-disk STDF V4 byte
// streams by hand for use by the engine's package tests, the same
// hand-assembled-fixture style the teacher uses in config_test.go's
// writeTemp and sqlite_queue_test.go's makeEvent helpers.
package stdftest

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/foundry/stdfingest/internal/stdfrec"
)

// Payload incrementally builds one record's payload bytes in the STDF
// primitive field types the decoders expect, in the field order each
// Decode* function reads them.
type Payload struct {
	order binary.ByteOrder
	buf   []byte
}

// NewPayload starts a payload encoded in order (must match the order the
// record's header length field -- and every other record in the stream
// -- is written in).
func NewPayload(order binary.ByteOrder) *Payload {
	return &Payload{order: order}
}

func (p *Payload) U1(v uint8) *Payload {
	p.buf = append(p.buf, v)
	return p
}

func (p *Payload) I1(v int8) *Payload { return p.U1(uint8(v)) }
func (p *Payload) C1(v byte) *Payload { return p.U1(v) }

func (p *Payload) U2(v uint16) *Payload {
	var b [2]byte
	p.order.PutUint16(b[:], v)
	p.buf = append(p.buf, b[:]...)
	return p
}

func (p *Payload) I2(v int16) *Payload { return p.U2(uint16(v)) }

func (p *Payload) U4(v uint32) *Payload {
	var b [4]byte
	p.order.PutUint32(b[:], v)
	p.buf = append(p.buf, b[:]...)
	return p
}

func (p *Payload) I4(v int32) *Payload { return p.U4(uint32(v)) }

func (p *Payload) R4(v float32) *Payload {
	return p.U4(math.Float32bits(v))
}

// Cn appends a length-prefixed (1-byte length) ASCII string, the STDF
// "Cn" type.
func (p *Payload) Cn(s string) *Payload {
	if len(s) > 255 {
		s = s[:255]
	}
	p.buf = append(p.buf, byte(len(s)))
	p.buf = append(p.buf, s...)
	return p
}

// Bn appends a length-prefixed raw byte field.
func (p *Payload) Bn(b []byte) *Payload {
	if len(b) > 255 {
		b = b[:255]
	}
	p.buf = append(p.buf, byte(len(b)))
	p.buf = append(p.buf, b...)
	return p
}

// Raw appends n raw bytes verbatim with no length prefix, for fields
// such as MPR's RTN_STAT whose length is carried by a preceding count
// field rather than a prefix byte of its own.
func (p *Payload) Raw(b []byte) *Payload {
	p.buf = append(p.buf, b...)
	return p
}

// Bytes returns the accumulated payload.
func (p *Payload) Bytes() []byte { return p.buf }

// Builder assembles a sequence of STDF records (4-byte header + payload
// each) into one byte stream.
type Builder struct {
	order binary.ByteOrder
	buf   []byte
}

// NewBuilder starts a stream whose headers encode multi-byte fields in
// order. Use binary.NativeEndian for a file the detector reads without
// swapping, or the opposite of the host's native order to exercise the
// swap path.
func NewBuilder(order binary.ByteOrder) *Builder {
	return &Builder{order: order}
}

// Record appends one record: a 4-byte header (RecLen, RecTyp, RecSub)
// followed by payload.
func (b *Builder) Record(code stdfrec.Code, payload []byte) *Builder {
	var hdr [4]byte
	b.order.PutUint16(hdr[0:2], uint16(len(payload)))
	hdr[2] = byte(code >> 8)
	hdr[3] = byte(code & 0xFF)
	b.buf = append(b.buf, hdr[:]...)
	b.buf = append(b.buf, payload...)
	return b
}

// FAR appends a well-formed File Attributes Record as the first record
// of the stream; cpuType is written as CPU_TYPE and is not read by
// internal/stdfio.DetectByteOrder, which decides from the header's
// rec_len alone.
func (b *Builder) FAR(cpuType uint8) *Builder {
	payload := NewPayload(b.order).U1(cpuType).U1(4).Bytes()
	return b.Record(stdfrec.CodeFAR, payload)
}

// Bytes returns the accumulated stream.
func (b *Builder) Bytes() []byte { return b.buf }

// WriteTempFile writes the accumulated stream to a new temporary file
// (caller-chosen name pattern) and returns its path.
func WriteTempFile(dir, pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}
