package frame

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"reflect"
	"testing"
)

func TestEncodeHeaderDefault(t *testing.T) {
	h := DefaultHeader().Encode()
	if len(h) != 4 {
		t.Fatalf("header length: got %d, want 4", len(h))
	}
	if h[0]>>4 != ProtocolVersion {
		t.Errorf("version nibble: got %d, want %d", h[0]>>4, ProtocolVersion)
	}
	if h[0]&0x0f != 1 {
		t.Errorf("header size nibble: got %d, want 1", h[0]&0x0f)
	}
	if MsgType(h[1]>>4) != ClientFullRequest {
		t.Errorf("type nibble: got %d, want %d", h[1]>>4, ClientFullRequest)
	}
	if Flags(h[1]&0x0f) != MsgWithEvent {
		t.Errorf("flags nibble: got %d, want %d", h[1]&0x0f, MsgWithEvent)
	}
	if Serialization(h[2]>>4) != JSON {
		t.Errorf("serialization nibble: got %d, want %d", h[2]>>4, JSON)
	}
	if Compression(h[2]&0x0f) != GZIP {
		t.Errorf("compression nibble: got %d, want %d", h[2]&0x0f, GZIP)
	}
	if h[3] != 0x00 {
		t.Errorf("reserved byte: got %#x, want 0", h[3])
	}
}

func TestEncodeHeaderRoundTrip(t *testing.T) {
	types := []MsgType{ClientFullRequest, ClientAudioOnlyRequest, ServerFullResponse, ServerACK, ServerErrorResponse}
	flags := []Flags{NoSequence, PosSequence, NegSequence, MsgWithEvent}
	serials := []Serialization{NoSerialization, JSON, Thrift, CustomType}
	comps := []Compression{NoCompression, GZIP, CustomCompression}

	for _, mt := range types {
		for _, fl := range flags {
			for _, se := range serials {
				for _, co := range comps {
					h := Header{Type: mt, Flags: fl, Serialization: se, Compression: co}.Encode()
					if len(h) != 4 {
						t.Fatalf("header length: got %d, want 4", len(h))
					}
					if MsgType(h[1]>>4) != mt || Flags(h[1]&0x0f) != fl {
						t.Errorf("byte 1 mismatch for type=%v flags=%v: %#x", mt, fl, h[1])
					}
					if Serialization(h[2]>>4) != se || Compression(h[2]&0x0f) != co {
						t.Errorf("byte 2 mismatch for serial=%v comp=%v: %#x", se, co, h[2])
					}
				}
			}
		}
	}
}

func TestEncodeHeaderExtension(t *testing.T) {
	for l := 0; l <= 9; l++ {
		ext := bytes.Repeat([]byte{0xab}, l)
		h := Header{Type: ClientFullRequest, Extension: ext}.Encode()

		wantSize := 1 + (l+3)/4
		if int(h[0]&0x0f) != wantSize {
			t.Errorf("ext len %d: size nibble got %d, want %d", l, h[0]&0x0f, wantSize)
		}
		if len(h) != wantSize*4 {
			t.Errorf("ext len %d: total length got %d, want %d", l, len(h), wantSize*4)
		}
		if !bytes.Equal(h[4:4+l], ext) {
			t.Errorf("ext len %d: extension bytes not copied verbatim", l)
		}
		for _, pad := range h[4+l:] {
			if pad != 0 {
				t.Errorf("ext len %d: padding not zeroed", l)
			}
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	r, err := Decode(nil)
	if r != nil || err != nil {
		t.Errorf("Decode(nil): got (%v, %v), want (nil, nil)", r, err)
	}
	r, err = Decode([]byte{})
	if r != nil || err != nil {
		t.Errorf("Decode(empty): got (%v, %v), want (nil, nil)", r, err)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := Decode([]byte{0x01}); err != ErrTooShort {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
}

func TestDecodeInvalidHeaderSize(t *testing.T) {
	data := []byte{ProtocolVersion << 4, 0x00, 0x00, 0x00} // size nibble 0
	if _, err := Decode(data); err != ErrInvalidHeaderSize {
		t.Errorf("expected ErrInvalidHeaderSize, got %v", err)
	}
}

func TestDecodeShortHeader(t *testing.T) {
	data := []byte{ProtocolVersion<<4 | 0x02, 0x00, 0x00, 0x00} // declares 8 bytes, has 4
	if _, err := Decode(data); err != ErrShortHeader {
		t.Errorf("expected ErrShortHeader, got %v", err)
	}
}

// buildResponse assembles a server frame the way the gateway does: header,
// optional seq/event, signed session-id length + bytes, payload length + bytes.
func buildResponse(mt MsgType, fl Flags, se Serialization, co Compression, seq, event int32, session []byte, payload []byte) []byte {
	out := []byte{
		ProtocolVersion<<4 | 0x01,
		byte(mt)<<4 | byte(fl),
		byte(se)<<4 | byte(co),
		0x00,
	}
	if fl.HasSequence() {
		out = binary.BigEndian.AppendUint32(out, uint32(seq))
	}
	if fl.HasEvent() {
		out = binary.BigEndian.AppendUint32(out, uint32(event))
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(session)))
	out = append(out, session...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

func TestDecodeFullResponse(t *testing.T) {
	compressed := Compress([]byte(`{"key":"value"}`))
	data := buildResponse(ServerFullResponse, NegSequence|MsgWithEvent, JSON, GZIP,
		1234, 5678, []byte("session123"), compressed)

	r, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Type != ServerFullResponse || r.Type.String() != "SERVER_FULL_RESPONSE" {
		t.Errorf("type: got %v", r.Type)
	}
	if r.Sequence == nil || *r.Sequence != 1234 {
		t.Errorf("sequence: got %v, want 1234", r.Sequence)
	}
	if r.Event == nil || *r.Event != 5678 {
		t.Errorf("event: got %v, want 5678", r.Event)
	}
	if r.SessionID != "b'session123'" {
		t.Errorf("session id: got %q, want b'session123'", r.SessionID)
	}
	if !bytes.Equal(r.RawSessionID, []byte("session123")) {
		t.Errorf("raw session id: got %q", r.RawSessionID)
	}
	if r.PayloadSize != uint32(len(compressed)) {
		t.Errorf("payload size: got %d, want %d", r.PayloadSize, len(compressed))
	}
	want := map[string]any{"key": "value"}
	if !reflect.DeepEqual(r.PayloadMsg, any(want)) {
		t.Errorf("payload msg: got %#v, want %#v", r.PayloadMsg, want)
	}
}

func TestDecodeACKOmitsAbsentFields(t *testing.T) {
	data := buildResponse(ServerACK, NoSequence, JSON, NoCompression,
		0, 0, []byte("session456"), []byte(`{"status":"ok"}`))

	r, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Type.String() != "SERVER_ACK" {
		t.Errorf("type: got %v", r.Type)
	}
	if r.Sequence != nil {
		t.Errorf("sequence should be absent, got %d", *r.Sequence)
	}
	if r.Event != nil {
		t.Errorf("event should be absent, got %d", *r.Event)
	}
	if r.SessionID != "b'session456'" {
		t.Errorf("session id: got %q", r.SessionID)
	}
	if !reflect.DeepEqual(r.PayloadMsg, any(map[string]any{"status": "ok"})) {
		t.Errorf("payload msg: got %#v", r.PayloadMsg)
	}
}

func TestDecodeErrorResponse(t *testing.T) {
	msg := []byte(`{"error":"Not found"}`)
	data := []byte{
		ProtocolVersion<<4 | 0x01,
		byte(ServerErrorResponse) << 4,
		byte(JSON)<<4 | byte(NoCompression),
		0x00,
	}
	data = binary.BigEndian.AppendUint32(data, 404)
	data = binary.BigEndian.AppendUint32(data, uint32(len(msg)))
	data = append(data, msg...)

	r, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Code != 404 {
		t.Errorf("code: got %d, want 404", r.Code)
	}
	if r.PayloadSize != uint32(len(msg)) {
		t.Errorf("payload size: got %d, want %d", r.PayloadSize, len(msg))
	}
	if !reflect.DeepEqual(r.PayloadMsg, any(map[string]any{"error": "Not found"})) {
		t.Errorf("payload msg: got %#v", r.PayloadMsg)
	}
}

func TestDecodeRawPassthrough(t *testing.T) {
	raw := []byte("raw binary data")
	data := buildResponse(ServerFullResponse, NoSequence, NoSerialization, NoCompression,
		0, 0, []byte("session456"), raw)

	r, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(r.Payload, raw) {
		t.Errorf("payload: got %q, want %q", r.Payload, raw)
	}
	got, ok := r.PayloadMsg.([]byte)
	if !ok || !bytes.Equal(got, raw) {
		t.Errorf("payload msg: got %#v, want raw bytes", r.PayloadMsg)
	}
}

func TestDecodeTruncatedField(t *testing.T) {
	full := buildResponse(ServerFullResponse, NegSequence|MsgWithEvent, JSON, NoCompression,
		1, 2, []byte("session123"), []byte(`{}`))

	// Cutting anywhere after the header must produce ErrTruncated, never a
	// partial Response or a panic.
	for cut := MinHeaderLen; cut < len(full); cut++ {
		if _, err := Decode(full[:cut]); err != ErrTruncated {
			t.Fatalf("cut at %d: expected ErrTruncated, got %v", cut, err)
		}
	}
}

func TestDecodeBadGzip(t *testing.T) {
	data := buildResponse(ServerFullResponse, NoSequence, JSON, GZIP,
		0, 0, []byte("s"), []byte("definitely not gzip"))
	if _, err := Decode(data); err == nil {
		t.Error("expected error for corrupt gzip payload")
	}
}

func TestDecodeBadJSON(t *testing.T) {
	data := buildResponse(ServerFullResponse, NoSequence, JSON, NoCompression,
		0, 0, []byte("s"), []byte("{not json"))
	if _, err := Decode(data); err == nil {
		t.Error("expected error for malformed json payload")
	}
}

func TestDecodeIdempotent(t *testing.T) {
	data := buildResponse(ServerFullResponse, NegSequence|MsgWithEvent, JSON, GZIP,
		7, 451, []byte("session123"), Compress([]byte(`{"results":[{"text":"hi"}]}`)))

	first, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("decoding the same frame twice gave different results")
	}
}

func TestRequestEncode(t *testing.T) {
	payload := Compress([]byte(`{"asr":{}}`))
	req := Request{
		Header:    DefaultHeader(),
		Event:     100,
		SessionID: "abc-123",
		Payload:   payload,
	}
	data := req.Encode()

	if len(data) != 4+4+4+len("abc-123")+4+len(payload) {
		t.Fatalf("frame length: got %d", len(data))
	}
	if int32(binary.BigEndian.Uint32(data[4:8])) != 100 {
		t.Errorf("event: got %d, want 100", binary.BigEndian.Uint32(data[4:8]))
	}
	sidLen := binary.BigEndian.Uint32(data[8:12])
	if sidLen != uint32(len("abc-123")) || string(data[12:12+sidLen]) != "abc-123" {
		t.Errorf("session id field mismatch")
	}
	off := 12 + int(sidLen)
	if binary.BigEndian.Uint32(data[off:off+4]) != uint32(len(payload)) {
		t.Errorf("payload length prefix mismatch")
	}
	if !bytes.Equal(data[off+4:], payload) {
		t.Errorf("payload bytes mismatch")
	}
}

func TestRequestEncodeNoSession(t *testing.T) {
	payload := Compress([]byte("{}"))
	data := Request{Header: DefaultHeader(), Event: 1, Payload: payload}.Encode()

	if int32(binary.BigEndian.Uint32(data[4:8])) != 1 {
		t.Errorf("event: got %d, want 1", binary.BigEndian.Uint32(data[4:8]))
	}
	// No session id field: payload length follows the event directly.
	if binary.BigEndian.Uint32(data[8:12]) != uint32(len(payload)) {
		t.Errorf("payload length prefix mismatch")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	msg, _ := json.Marshal(map[string]string{"key": "value"})
	out, err := Decompress(Compress(msg))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, msg) {
		t.Errorf("round trip mismatch: got %q, want %q", out, msg)
	}
}
