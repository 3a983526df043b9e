// Package reader implements the byte-order detector (component D) and the
// reader thread (component E): it walks STDF records sequentially,
// enqueues the fourteen record types the summarizer cares about, and
// seeks past everything else.
package reader

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/foundry/stdfingest/internal/ingesterr"
	"github.com/foundry/stdfingest/internal/pipeline"
	"github.com/foundry/stdfingest/internal/stdfio"
	"github.com/foundry/stdfingest/internal/stdfrec"
)

// Reader walks one STDF file and feeds pipeline.Messages to out.
type Reader struct {
	src    *stdfio.Source
	out    *pipeline.Queue
	logger *slog.Logger

	// offset is read by the progress reporter (G) from another goroutine;
	// stale reads are acceptable (§5), so a plain atomic load/store is
	// enough — no mutex needed.
	offset atomic.Uint64

	// stop is observed once per record boundary (§4.2, §5). The caller
	// sets it via RequestStop from any goroutine.
	stop atomic.Bool
}

// New constructs a Reader over an already-opened Source.
func New(src *stdfio.Source, out *pipeline.Queue, logger *slog.Logger) *Reader {
	return &Reader{src: src, out: out, logger: logger}
}

// RequestStop sets the cooperative stop flag (§4.2 step 1, §5
// cancellation). The reader observes it at the next record boundary and
// emits a terminal ErrTerminate FINISH message; no partial record is ever
// emitted.
func (r *Reader) RequestStop() {
	r.stop.Store(true)
}

// Offset returns the current byte offset into the (decompressed) stream,
// for the progress reporter's numerator.
func (r *Reader) Offset() uint64 {
	return r.offset.Load()
}

// Run executes the detector (D) followed by the reader loop (E),
// enqueuing messages on out until it emits the terminal OpFinish message.
// Run closes out before returning. Run must be called from its own
// goroutine; the caller joins it by reading from out until OpFinish, then
// waiting for Run's goroutine to exit (§5, "reader thread is always
// joined before the summarizer returns").
func (r *Reader) Run() {
	defer r.out.Close()

	needSwap, order, err := stdfio.DetectByteOrder(r.src)
	if err != nil {
		r.finish(err)
		return
	}
	r.out.Enqueue(pipeline.Message{Op: pipeline.OpSetEndian, Order: order})
	_ = needSwap

	if err := r.checkVersion(order); err != nil {
		r.finish(err)
		return
	}

	r.loop(order)
}

// checkVersion consumes the FAR record the detector just rewound past and
// validates STDF_VER == 4, the only version this engine decodes records
// for. DetectByteOrder only inspects the header's RecLen field to settle
// the swap decision; the version byte lives in FAR's payload and is
// otherwise never read, since FAR carries no record type the reader
// enqueues.
func (r *Reader) checkVersion(order binary.ByteOrder) error {
	var hdrBuf [4]byte
	if err := r.src.Read(hdrBuf[:]); err != nil {
		return fmt.Errorf("%w: %w", ingesterr.ErrOSFail, err)
	}
	r.offset.Add(4)

	hdr := stdfio.ReadHeader(hdrBuf, order)
	payload := make([]byte, hdr.RecLen)
	if err := r.src.Read(payload); err != nil {
		return fmt.Errorf("%w: %w", ingesterr.ErrOSFail, err)
	}
	r.offset.Add(uint64(hdr.RecLen))

	far := stdfrec.DecodeFAR(payload, order)
	if far.STDFVer != 4 {
		return ingesterr.ErrWrongVersion
	}
	return nil
}

func (r *Reader) loop(order binary.ByteOrder) {
	var hdrBuf [4]byte

	for {
		if r.stop.Load() {
			r.finish(ingesterr.ErrTerminate)
			return
		}

		if err := r.src.Read(hdrBuf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				r.finish(ingesterr.ErrEOF)
			} else {
				r.finish(fmt.Errorf("%w: %w", ingesterr.ErrOSFail, err))
			}
			return
		}
		r.offset.Add(4)

		hdr := stdfio.ReadHeader(hdrBuf, order)
		code := stdfrec.Code(uint16(hdr.RecTyp)<<8 | uint16(hdr.RecSub))

		if !stdfrec.IsEnqueued(code) {
			if err := r.src.Skip(int(hdr.RecLen)); err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					r.finish(ingesterr.ErrEOF)
				} else {
					r.finish(fmt.Errorf("%w: %w", ingesterr.ErrOSFail, err))
				}
				return
			}
			r.offset.Add(uint64(hdr.RecLen))
			continue
		}

		payload := make([]byte, hdr.RecLen)
		if err := r.src.Read(payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				r.finish(ingesterr.ErrEOF)
			} else {
				r.finish(fmt.Errorf("%w: %w", ingesterr.ErrOSFail, err))
			}
			return
		}

		fileOffset := r.offset.Load()
		r.out.Enqueue(pipeline.Message{
			Op:         pipeline.OpParse,
			RecordCode: code,
			FileOffset: fileOffset,
			Raw:        payload,
			RawLen:     hdr.RecLen,
		})
		r.offset.Add(uint64(hdr.RecLen))
	}
}

func (r *Reader) finish(err error) {
	r.out.Enqueue(pipeline.Message{Op: pipeline.OpFinish, Err: err})
	if r.logger != nil {
		r.logger.Debug("reader: finished", slog.Any("error", err), slog.Uint64("offset", r.offset.Load()))
	}
}
