package stdfrec

import (
	"encoding/binary"
	"math"
)

// cursor is a small forward-only reader over a record payload that tracks
// the STDF primitive field types (U1/U2/U4, I1/I2/I4, R4/R8, Cn, Bn),
// decoding each with the cursor's binary.ByteOrder, including STDF's
// length-prefixed variable fields.
type cursor struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
	// missing is set once a read runs past the end of buf. STDF records
	// legally omit trailing optional fields, so callers treat a missing
	// read as "field not present" rather than an error.
	missing bool
}

func newCursor(buf []byte, order binary.ByteOrder) *cursor {
	return &cursor{buf: buf, order: order}
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) u1() uint8 {
	if c.remaining() < 1 {
		c.missing = true
		return 0
	}
	v := c.buf[c.pos]
	c.pos++
	return v
}

func (c *cursor) i1() int8 { return int8(c.u1()) }

func (c *cursor) u2() uint16 {
	if c.remaining() < 2 {
		c.missing = true
		return 0
	}
	v := c.order.Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v
}

func (c *cursor) i2() int16 { return int16(c.u2()) }

func (c *cursor) u4() uint32 {
	if c.remaining() < 4 {
		c.missing = true
		return 0
	}
	v := c.order.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v
}

func (c *cursor) i4() int32 { return int32(c.u4()) }

func (c *cursor) r4() float32 {
	return math.Float32frombits(c.u4())
}

func (c *cursor) r8() float64 {
	if c.remaining() < 8 {
		c.missing = true
		return 0
	}
	bits := c.order.Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return math.Float64frombits(bits)
}

// cn reads a length-prefixed (1-byte length) ASCII string, the STDF "Cn"
// type. A missing length byte yields "" and a truncated body yields the
// bytes that are present; both set missing rather than an error: Cn
// fields are frequently omitted by the writer.
func (c *cursor) cn() string {
	if c.remaining() < 1 {
		c.missing = true
		return ""
	}
	n := int(c.buf[c.pos])
	c.pos++
	if c.remaining() < n {
		c.missing = true
		n = c.remaining()
	}
	s := string(c.buf[c.pos : c.pos+n])
	c.pos += n
	return s
}

// bn reads a length-prefixed byte field (the STDF "Bn"/"Nn" family used by
// PMR/PGR index arrays); returned verbatim, no interpretation.
func (c *cursor) bn() []byte {
	if c.remaining() < 1 {
		c.missing = true
		return nil
	}
	n := int(c.buf[c.pos])
	c.pos++
	if c.remaining() < n {
		c.missing = true
		n = c.remaining()
	}
	b := append([]byte(nil), c.buf[c.pos:c.pos+n]...)
	c.pos += n
	return b
}

// c1 reads a single fixed-width ASCII character field (the STDF "C1"
// type used for MODE_COD, PART_FLG-adjacent flag bytes, etc.).
func (c *cursor) c1() byte { return c.u1() }

// skipn advances past n raw bytes with no length prefix (MPR's RTN_STAT
// nibble array, whose length is carried by a preceding count field
// rather than a length byte of its own).
func (c *cursor) skipn(n int) {
	if c.remaining() < n {
		c.missing = true
		c.pos = len(c.buf)
		return
	}
	c.pos += n
}
