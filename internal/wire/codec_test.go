// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(a, b, c, d byte, port uint16) Addr {
	return Addr{IP: [4]byte{a, b, c, d}, Port: port}
}

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteMessage(msg))
	got, err := NewDecoder(&buf).ReadMessage()
	require.NoError(t, err)
	return got
}

func TestRoundTrip(t *testing.T) {
	many := make([]Addr, 0, 257)
	for i := 0; i < 257; i++ {
		many = append(many, addr(10, 0, byte(i>>8), byte(i), uint16(i)))
	}

	cases := []Message{
		GetPeersRequest{},
		Ping{Text: ""},
		Ping{Text: "hello, mesh"},
		Connect{},
		Connected{Addr: addr(0, 0, 0, 0, 0)},
		Connected{Addr: addr(255, 255, 255, 255, 65535)},
		Connected{Addr: addr(127, 0, 0, 1, 2050)},
		GetPeersResponse{Addrs: nil},
		GetPeersResponse{Addrs: []Addr{}},
		GetPeersResponse{Addrs: []Addr{addr(0, 0, 0, 0, 0), addr(255, 255, 255, 255, 65535)}},
		GetPeersResponse{Addrs: many},
	}

	for _, c := range cases {
		got := roundTrip(t, c)
		if gr, ok := got.(GetPeersResponse); ok && gr.Addrs == nil {
			got = GetPeersResponse{Addrs: []Addr{}}
		}
		want := c
		if gr, ok := want.(GetPeersResponse); ok && gr.Addrs == nil {
			want = GetPeersResponse{Addrs: []Addr{}}
		}
		assert.Equal(t, want, got)
	}
}

// byteAtATimeReader feeds its buffer to Read one byte at a time, simulating a
// stream that delivers a frame in many small chunks.
type byteAtATimeReader struct {
	data []byte
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestIncrementalParsing(t *testing.T) {
	var buf bytes.Buffer
	msg := GetPeersResponse{Addrs: []Addr{addr(1, 2, 3, 4, 5555), addr(6, 7, 8, 9, 80)}}
	require.NoError(t, NewWriter(&buf).WriteMessage(msg))

	dec := NewDecoder(&byteAtATimeReader{data: buf.Bytes()})
	got, err := dec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Empty(t, dec.buf)
}

func TestReadMessageConnectionClosed(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil)).ReadMessage()
	assert.ErrorIs(t, err, ErrConnectionClosed)

	// An incomplete frame (tag + partial length) followed by EOF also
	// fails as connection closed, never as a successful partial decode.
	_, err = NewDecoder(bytes.NewReader([]byte{byte(TagPing), 0, 0})).ReadMessage()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadMessageInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagPing))
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 2})
	buf.Write([]byte{0xff, 0xfe})
	_, err := NewDecoder(&buf).ReadMessage()
	assert.Error(t, err)
}

func TestReadMessageUnknownTag(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{0x7f})).ReadMessage()
	assert.ErrorIs(t, err, ErrUnknownTag)
}

// Literal encodings from the spec's framing unit scenarios.
func TestLiteralEncodings(t *testing.T) {
	enc := func(m Message) []byte {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf).WriteMessage(m))
		return buf.Bytes()
	}

	assert.Equal(t, []byte{0x01, 0, 0, 0, 0, 0, 0, 0, 0}, enc(Ping{Text: ""}))
	assert.Equal(t, []byte{0x00}, enc(GetPeersRequest{}))
	assert.Equal(t, []byte{0x04, 127, 0, 0, 1, 0x08, 0x02}, enc(Connected{Addr: addr(127, 0, 0, 1, 2050)}))
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0}, enc(GetPeersResponse{Addrs: nil}))
}

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("127.0.0.1:2050")
	require.NoError(t, err)
	assert.Equal(t, addr(127, 0, 0, 1, 2050), a)
	assert.Equal(t, "127.0.0.1:2050", a.String())

	_, err = ParseAddr("not-an-addr")
	assert.Error(t, err)

	_, err = ParseAddr("::1:80")
	assert.Error(t, err)
}
