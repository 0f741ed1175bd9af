// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrConnectionClosed is returned when the stream ends without a
// complete frame pending, including the case of an empty buffer.
var ErrConnectionClosed = errors.New("wire: connection closed")

// ErrUnknownTag is returned when a frame's leading byte does not match
// any known Tag. Per the redesign note in the spec this is a recoverable
// framing error, not a process abort.
var ErrUnknownTag = errors.New("wire: unknown tag")

// maxPingLen and maxAddrCount bound a single frame's declared payload
// size. The wire format places no limit on frame size; this is the "sane
// cap" the spec asks implementations to choose.
const (
	maxPingLen   = 16 << 20 // 16 MiB of ping text
	maxAddrCount = 1 << 20  // ~6 MiB of address list
)

// Writer serializes Messages onto a stream. A successful WriteMessage
// return means the full frame has reached the transport: the write is
// immediately flushed.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w in a buffered frame writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1024)}
}

// WriteMessage encodes and flushes msg.
func (e *Writer) WriteMessage(msg Message) error {
	switch m := msg.(type) {
	case GetPeersRequest:
		if err := e.w.WriteByte(byte(TagGetPeersRequest)); err != nil {
			return err
		}

	case Ping:
		if err := e.w.WriteByte(byte(TagPing)); err != nil {
			return err
		}
		text := []byte(m.Text)
		if err := binary.Write(e.w, binary.BigEndian, uint64(len(text))); err != nil {
			return err
		}
		if _, err := e.w.Write(text); err != nil {
			return err
		}

	case GetPeersResponse:
		if err := e.w.WriteByte(byte(TagGetPeersResponse)); err != nil {
			return err
		}
		if err := binary.Write(e.w, binary.BigEndian, uint64(len(m.Addrs))); err != nil {
			return err
		}
		for _, a := range m.Addrs {
			b := encodeAddr(a)
			if _, err := e.w.Write(b[:]); err != nil {
				return err
			}
		}

	case Connect:
		if err := e.w.WriteByte(byte(TagConnect)); err != nil {
			return err
		}

	case Connected:
		if err := e.w.WriteByte(byte(TagConnected)); err != nil {
			return err
		}
		b := encodeAddr(m.Addr)
		if _, err := e.w.Write(b[:]); err != nil {
			return err
		}

	default:
		return fmt.Errorf("wire: unsupported message type %T", msg)
	}

	return e.w.Flush()
}

// Decoder performs incremental framing over a stream: it only ever
// consumes bytes from its buffer once a complete message has been
// decoded from its head.
type Decoder struct {
	r       io.Reader
	buf     []byte
	scratch []byte
}

// NewDecoder wraps r in an incremental frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		buf:     make([]byte, 0, 1024),
		scratch: make([]byte, 4096),
	}
}

// ReadMessage returns the next decoded message, reading more from the
// underlying stream as needed. It returns ErrConnectionClosed if the
// stream ends with an empty or incomplete buffer.
func (d *Decoder) ReadMessage() (Message, error) {
	for {
		msg, n, err := parseMessage(d.buf)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			d.buf = d.buf[n:]
			return msg, nil
		}

		n, err = d.r.Read(d.scratch)
		if n > 0 {
			d.buf = append(d.buf, d.scratch[:n]...)
		}
		if n == 0 {
			if err != nil {
				return nil, ErrConnectionClosed
			}
			continue
		}
	}
}

// parseMessage attempts to decode exactly one message from the head of
// buf. It returns (nil, 0, nil) when buf does not yet hold a complete
// frame; the caller must read more bytes before retrying.
func parseMessage(buf []byte) (Message, int, error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}

	switch Tag(buf[0]) {
	case TagGetPeersRequest:
		return GetPeersRequest{}, 1, nil

	case TagConnect:
		return Connect{}, 1, nil

	case TagConnected:
		if len(buf) < 7 {
			return nil, 0, nil
		}
		return Connected{Addr: decodeAddr(buf[1:7])}, 7, nil

	case TagPing:
		if len(buf) < 9 {
			return nil, 0, nil
		}
		n := binary.BigEndian.Uint64(buf[1:9])
		if n > maxPingLen {
			return nil, 0, fmt.Errorf("wire: ping payload too large (%d bytes)", n)
		}
		total := 9 + int(n)
		if len(buf) < total {
			return nil, 0, nil
		}
		text := buf[9:total]
		if !utf8.Valid(text) {
			return nil, 0, fmt.Errorf("wire: ping payload is not valid utf-8")
		}
		return Ping{Text: string(text)}, total, nil

	case TagGetPeersResponse:
		if len(buf) < 9 {
			return nil, 0, nil
		}
		count := binary.BigEndian.Uint64(buf[1:9])
		if count > maxAddrCount {
			return nil, 0, fmt.Errorf("wire: address list too large (%d entries)", count)
		}
		total := 9 + int(count)*6
		if len(buf) < total {
			return nil, 0, nil
		}
		addrs := make([]Addr, count)
		off := 9
		for i := range addrs {
			addrs[i] = decodeAddr(buf[off : off+6])
			off += 6
		}
		return GetPeersResponse{Addrs: addrs}, total, nil

	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownTag, buf[0])
	}
}
