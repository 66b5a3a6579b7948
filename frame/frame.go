// Package frame implements the 4-byte binary header codec for the realtime
// speech dialog protocol. Every message on the wire starts with a fixed
// header whose nibbles carry the protocol version, header size, message
// type, flags, serialization method and compression type:
//
//	[0] protocol version (high) | header size in 4-byte units (low)
//	[1] message type (high)     | message-type-specific flags (low)
//	[2] serialization (high)    | compression (low)
//	[3] reserved, always 0x00
//
// A header size above 1 means extension bytes follow byte 3, padding the
// header out to size*4 bytes. After the header, frames carry an optional
// sequence number, an optional event code, an optional length-prefixed
// session id, and a length-prefixed payload. All multi-byte integers are
// big-endian.
package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ProtocolVersion occupies the high nibble of header byte 0.
const ProtocolVersion = 0b0001

// MinHeaderLen is the smallest legal frame: one 4-byte header unit.
const MinHeaderLen = 4

// Message types. High nibble of header byte 1.
type MsgType uint8

const (
	ClientFullRequest      MsgType = 0b0001
	ClientAudioOnlyRequest MsgType = 0b0010
	ServerFullResponse     MsgType = 0b1001
	ServerACK              MsgType = 0b1011
	ServerErrorResponse    MsgType = 0b1111
)

func (t MsgType) String() string {
	switch t {
	case ClientFullRequest:
		return "CLIENT_FULL_REQUEST"
	case ClientAudioOnlyRequest:
		return "CLIENT_AUDIO_ONLY_REQUEST"
	case ServerFullResponse:
		return "SERVER_FULL_RESPONSE"
	case ServerACK:
		return "SERVER_ACK"
	case ServerErrorResponse:
		return "SERVER_ERROR_RESPONSE"
	default:
		return fmt.Sprintf("MSG_TYPE(%#x)", uint8(t))
	}
}

// Message-type-specific flags. Low nibble of header byte 1. They determine
// which framing fields follow the header.
type Flags uint8

const (
	NoSequence   Flags = 0b0000
	PosSequence  Flags = 0b0001
	NegSequence  Flags = 0b0010
	MsgWithEvent Flags = 0b0100
)

// HasSequence reports whether a signed 4-byte sequence number follows the
// header. Any nonzero flag nibble carries one.
func (f Flags) HasSequence() bool { return f != NoSequence }

// HasEvent reports whether a 4-byte event code follows the sequence number.
func (f Flags) HasEvent() bool { return f&MsgWithEvent != 0 }

// Payload serialization methods. High nibble of header byte 2.
type Serialization uint8

const (
	NoSerialization Serialization = 0b0000
	JSON            Serialization = 0b0001
	Thrift          Serialization = 0b0011
	CustomType      Serialization = 0b1111
)

// Payload compression types. Low nibble of header byte 2.
type Compression uint8

const (
	NoCompression     Compression = 0b0000
	GZIP              Compression = 0b0001
	CustomCompression Compression = 0b1111
)

// Framing problems are reported as error values so a receive loop can log,
// drop the frame, and keep reading.
var (
	ErrTooShort          = errors.New("frame: response too short")
	ErrInvalidHeaderSize = errors.New("frame: invalid header size: 0")
	ErrShortHeader       = errors.New("frame: response shorter than header indicates")
	ErrTruncated         = errors.New("frame: field extends past end of frame")
)

// Header describes the fixed header of an outgoing frame.
type Header struct {
	Type          MsgType
	Flags         Flags
	Serialization Serialization
	Compression   Compression
	Extension     []byte // optional extension bytes, zero-padded to a 4-byte boundary
}

// DefaultHeader returns the header used for ordinary client requests:
// full request, event framing, JSON payload, gzip compression.
func DefaultHeader() Header {
	return Header{
		Type:          ClientFullRequest,
		Flags:         MsgWithEvent,
		Serialization: JSON,
		Compression:   GZIP,
	}
}

// Encode serialises the header into size*4 bytes, where
// size = 1 + ceil(len(Extension)/4).
func (h Header) Encode() []byte {
	size := 1 + (len(h.Extension)+3)/4
	out := make([]byte, size*4)
	out[0] = ProtocolVersion<<4 | byte(size)
	out[1] = byte(h.Type)<<4 | byte(h.Flags)
	out[2] = byte(h.Serialization)<<4 | byte(h.Compression)
	// out[3] is reserved
	copy(out[4:], h.Extension)
	return out
}

// Request is one outgoing client frame: header, event code, optional
// session id, then the length-prefixed payload. Payload must already be
// compressed to match Header.Compression.
type Request struct {
	Header    Header
	Event     int32
	SessionID string // empty for connection-level events
	Payload   []byte
}

// Encode serialises the request into a single wire frame.
func (r Request) Encode() []byte {
	head := r.Header.Encode()
	n := len(head) + 8 + len(r.Payload)
	if r.SessionID != "" {
		n += 4 + len(r.SessionID)
	}
	out := make([]byte, 0, n)
	out = append(out, head...)
	out = binary.BigEndian.AppendUint32(out, uint32(r.Event))
	if r.SessionID != "" {
		out = binary.BigEndian.AppendUint32(out, uint32(len(r.SessionID)))
		out = append(out, r.SessionID...)
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
	out = append(out, r.Payload...)
	return out
}

// Response is one parsed server frame. Sequence and Event are nil when the
// frame's flag nibble did not carry them; absent is distinct from zero.
type Response struct {
	Type          MsgType
	Flags         Flags
	Serialization Serialization
	Compression   Compression

	Sequence *int32
	Event    *int32

	// SessionID is the session id in the gateway's quoted debug form,
	// e.g. "b'session123'", which is how the service's tooling and other
	// SDKs report it. RawSessionID holds the undecorated bytes.
	SessionID    string
	RawSessionID []byte

	// Code is the server error code, set only for ServerErrorResponse.
	Code uint32

	// PayloadSize is the on-wire payload length, before decompression.
	PayloadSize uint32
	// Payload holds the payload bytes after decompression.
	Payload []byte
	// PayloadMsg is the deserialized payload: a decoded JSON value when the
	// header declares JSON, the raw bytes otherwise (Thrift and custom
	// serialization are pass-through).
	PayloadMsg any
}

// Decode parses one received frame. Empty input decodes to (nil, nil):
// nothing to parse, which is not a framing error. Frames of unknown message
// type decode to a Response carrying header fields only.
func Decode(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < MinHeaderLen {
		return nil, ErrTooShort
	}
	headerSize := int(data[0] & 0x0f)
	if headerSize == 0 {
		return nil, ErrInvalidHeaderSize
	}
	if len(data) < headerSize*4 {
		return nil, ErrShortHeader
	}

	r := &Response{
		Type:          MsgType(data[1] >> 4),
		Flags:         Flags(data[1] & 0x0f),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0f),
	}
	body := data[headerSize*4:] // extension bytes, if any, are skipped

	switch r.Type {
	case ServerFullResponse, ServerACK:
		var err error
		if r.Flags.HasSequence() {
			var seq int32
			if seq, body, err = takeInt32(body); err != nil {
				return nil, err
			}
			r.Sequence = &seq
		}
		if r.Flags.HasEvent() {
			var ev int32
			if ev, body, err = takeInt32(body); err != nil {
				return nil, err
			}
			r.Event = &ev
		}
		// Session id length is signed on the wire.
		var n int32
		if n, body, err = takeInt32(body); err != nil {
			return nil, err
		}
		if r.RawSessionID, body, err = takeBytes(body, int(n)); err != nil {
			return nil, err
		}
		r.SessionID = quoteBytes(r.RawSessionID)

		if r.PayloadSize, body, err = takeUint32(body); err != nil {
			return nil, err
		}
		var payload []byte
		if payload, _, err = takeBytes(body, int(r.PayloadSize)); err != nil {
			return nil, err
		}
		if err = r.decodePayload(payload); err != nil {
			return nil, err
		}

	case ServerErrorResponse:
		var err error
		if r.Code, body, err = takeUint32(body); err != nil {
			return nil, err
		}
		if r.PayloadSize, body, err = takeUint32(body); err != nil {
			return nil, err
		}
		var msg []byte
		if msg, _, err = takeBytes(body, int(r.PayloadSize)); err != nil {
			return nil, err
		}
		if err = r.decodePayload(msg); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// decodePayload applies the header's compression and serialization to raw
// payload bytes. A frame that declares an encoding its payload does not
// satisfy is as malformed as a bad length prefix.
func (r *Response) decodePayload(raw []byte) error {
	data := raw
	if r.Compression == GZIP {
		var err error
		if data, err = Decompress(data); err != nil {
			return fmt.Errorf("frame: gunzip payload: %w", err)
		}
	}
	r.Payload = data

	if r.Serialization == JSON {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("frame: decode json payload: %w", err)
		}
		r.PayloadMsg = v
		return nil
	}
	r.PayloadMsg = data
	return nil
}

func takeUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrTruncated
	}
	return binary.BigEndian.Uint32(buf[:4]), buf[4:], nil
}

func takeInt32(buf []byte) (int32, []byte, error) {
	v, rest, err := takeUint32(buf)
	return int32(v), rest, err
}

func takeBytes(buf []byte, n int) ([]byte, []byte, error) {
	if n < 0 || len(buf) < n {
		return nil, nil, ErrTruncated
	}
	return buf[:n], buf[n:], nil
}

// quoteBytes renders raw bytes in the quoted debug form used across the
// dialog service's tooling: printable ASCII verbatim, everything else as a
// \xNN escape, wrapped in b'...'.
func quoteBytes(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) + 3)
	sb.WriteString("b'")
	for _, c := range b {
		switch {
		case c == '\\' || c == '\'':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
