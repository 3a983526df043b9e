package ws

import (
	"bufio"
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by RFC 6455 §4.1; not used for security
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// maxFrameSize bounds the WebSocket payload length this server accepts from
// a client; progress subscribers send only control frames (close, ping),
// so anything larger is treated as misbehaving and the connection is
// dropped.
const maxFrameSize = 64 * 1024

// wsGUID is the fixed GUID from RFC 6455 §4.1 used to compute
// Sec-WebSocket-Accept.
const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handler upgrades an HTTP connection to a WebSocket and streams one job's
// progress Broadcaster to it. There is no external WebSocket dependency:
// the handshake and minimal framing needed for server-to-client text frames
// are implemented directly against net.Conn.
type Handler struct {
	bc     *Broadcaster
	logger *slog.Logger

	writeTimeout time.Duration
}

// NewHandler creates a Handler backed by bc. writeTimeout <= 0 defaults to
// 10 seconds.
func NewHandler(bc *Broadcaster, logger *slog.Logger, writeTimeout time.Duration) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Handler{bc: bc, logger: logger, writeTimeout: writeTimeout}
}

// ServeHTTP performs the HTTP -> WebSocket upgrade and drives the
// connection's read/write loops until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		http.Error(w, "missing Sec-WebSocket-Key", http.StatusBadRequest)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "server does not support hijacking", http.StatusInternalServerError)
		return
	}

	conn, bufrw, err := hj.Hijack()
	if err != nil {
		h.logger.Error("ws: hijack failed", slog.Any("error", err))
		return
	}

	accept := computeAcceptKey(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := bufrw.WriteString(resp); err != nil {
		h.logger.Error("ws: handshake write failed", slog.Any("error", err))
		conn.Close()
		return
	}
	if err := bufrw.Flush(); err != nil {
		h.logger.Error("ws: handshake flush failed", slog.Any("error", err))
		conn.Close()
		return
	}

	clientID := uuid.NewString()
	client := h.bc.Register(clientID)
	defer h.bc.Unregister(clientID)

	h.logger.Info("ws: client connected",
		slog.String("client_id", clientID),
		slog.String("remote_addr", conn.RemoteAddr().String()),
	)

	var closed atomic.Bool
	closeOnce := func() {
		if closed.CompareAndSwap(false, true) {
			conn.Close()
		}
	}

	// pings carries ping-frame application data from readLoop to this
	// goroutine, the sole writer of conn: ingestion jobs can run for many
	// minutes, and a load balancer sitting in front of stdfserver will
	// reclaim a connection it sees no traffic on long before the job
	// finishes, so a ping here must get a pong back on the same cadence
	// the client sends them rather than waiting for the next progress
	// update. Depth 1 and a non-blocking send: only the most recent
	// pending ping matters for keepalive purposes.
	pings := make(chan []byte, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("ws: readLoop panic recovered", slog.Any("recover", rec), slog.String("client_id", clientID))
			}
		}()
		readLoop(conn, pings)
		closeOnce()
	}()

	for {
		select {
		case <-done:
			return

		case payload := <-pings:
			if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				closeOnce()
				return
			}
			if err := writePongFrame(conn, payload); err != nil {
				h.logger.Warn("ws: pong write failed", slog.String("client_id", clientID), slog.Any("error", err))
				closeOnce()
				return
			}

		case msg, ok := <-client.Send():
			if !ok {
				closeOnce()
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				closeOnce()
				return
			}
			if err := writeTextFrame(conn, msg); err != nil {
				h.logger.Warn("ws: write frame failed", slog.String("client_id", clientID), slog.Any("error", err))
				closeOnce()
				return
			}
		}
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func computeAcceptKey(key string) string {
	//nolint:gosec // SHA-1 is mandated by RFC 6455; not used for security
	h := sha1.New()
	h.Write([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// writeTextFrame writes payload as a single unmasked, unfragmented
// WebSocket text frame (FIN=1, opcode=0x1). Server-to-client frames must
// not be masked (RFC 6455 §5.1).
func writeTextFrame(conn net.Conn, payload []byte) error {
	n := len(payload)
	var header []byte
	switch {
	case n < 126:
		header = []byte{0x81, byte(n)}
	case n < 65536:
		header = []byte{0x81, 126, 0, 0}
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = 0x81
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// writePongFrame writes payload as a single unmasked pong frame (FIN=1,
// opcode=0xA) echoing back the ping's application data, per RFC 6455
// §5.5.3.
func writePongFrame(conn net.Conn, payload []byte) error {
	n := len(payload)
	header := []byte{0x8A, byte(n)} // control frames are never fragmented or extended-length
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if n > 0 {
		if _, err := conn.Write(payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// readLoop parses every client-to-server frame until the connection
// closes or a close frame (opcode 8) arrives. Ping frames (opcode 9) are
// forwarded to pings for the write goroutine to answer with a pong;
// everything else a progress subscriber might send is discarded, since
// it has nothing else to say.
func readLoop(conn net.Conn, pings chan<- []byte) {
	buf := bufio.NewReader(conn)
	for {
		b0, err := buf.ReadByte()
		if err != nil {
			return
		}
		b1, err := buf.ReadByte()
		if err != nil {
			return
		}

		opcode := b0 & 0x0F
		masked := (b1 & 0x80) != 0
		length := int64(b1 & 0x7F)

		switch length {
		case 126:
			var ext [2]byte
			if _, err := buf.Read(ext[:]); err != nil {
				return
			}
			length = int64(binary.BigEndian.Uint16(ext[:]))
		case 127:
			var ext [8]byte
			if _, err := buf.Read(ext[:]); err != nil {
				return
			}
			rawLen := binary.BigEndian.Uint64(ext[:])
			if rawLen > maxFrameSize {
				return
			}
			length = int64(rawLen)
		}

		var maskKey [4]byte
		if masked {
			if _, err := buf.Read(maskKey[:]); err != nil {
				return
			}
		}

		if opcode == 0x09 {
			payload := make([]byte, length)
			if length > 0 {
				if _, err := io.ReadFull(buf, payload); err != nil {
					return
				}
				if masked {
					for i := range payload {
						payload[i] ^= maskKey[i%4]
					}
				}
			}
			select {
			case pings <- payload:
			default: // a pong is already queued; this ping's keepalive purpose is already served
			}
			continue
		}

		if length > 0 {
			if _, err := io.CopyN(io.Discard, buf, length); err != nil {
				return
			}
		}

		if opcode == 0x08 {
			return
		}
	}
}
