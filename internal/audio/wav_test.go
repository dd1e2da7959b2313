package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// makeWAV builds a minimal 44-byte-header PCM file with the given payload.
func makeWAV(t *testing.T, f Format, data []byte) []byte {
	t.Helper()
	return Encode(&Segment{Format: f, Data: data})
}

// makeExtendedWAV builds a file with an 18-byte fmt chunk and a LIST chunk
// between fmt and data, the shape some encoders emit.
func makeExtendedWAV(t *testing.T, f Format, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w16 := func(v uint16) { binary.Write(&buf, binary.LittleEndian, v) }
	w32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }

	blockAlign := uint16(f.BytesPerFrame())
	listBody := []byte("INFOISFT\x0a\x00\x00\x00pagevoice\x00")

	buf.WriteString("RIFF")
	w32(uint32(4 + (8 + 18) + (8 + len(listBody)) + (8 + len(data))))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	w32(18)
	w16(formatPCM)
	w16(f.Channels)
	w32(f.SampleRate)
	w32(f.SampleRate * uint32(blockAlign))
	w16(blockAlign)
	w16(f.BitsPerSample)
	w16(0) // cbSize

	buf.WriteString("LIST")
	w32(uint32(len(listBody)))
	buf.Write(listBody)

	buf.WriteString("data")
	w32(uint32(len(data)))
	buf.Write(data)

	return buf.Bytes()
}

var mono16k = Format{Channels: 1, SampleRate: 16000, BitsPerSample: 16}

func TestParseCanonical(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01, 0x02}, 100)
	seg, err := Parse(makeWAV(t, mono16k, payload))
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if seg.Format != mono16k {
		t.Errorf("format = %s", seg.Format)
	}
	if !bytes.Equal(seg.Data, payload) {
		t.Errorf("payload mismatch: %d bytes", len(seg.Data))
	}
}

func TestParseExtendedHeader(t *testing.T) {
	// The payload of a non-minimal file must survive intact; a fixed
	// 44-byte skip would slice into the LIST chunk here.
	payload := bytes.Repeat([]byte{0xAA, 0xBB}, 64)
	raw := makeExtendedWAV(t, mono16k, payload)

	seg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if seg.Format != mono16k {
		t.Errorf("format = %s", seg.Format)
	}
	if !bytes.Equal(seg.Data, payload) {
		t.Errorf("payload mismatch: got %d bytes, want %d", len(seg.Data), len(payload))
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrNotWAV},
		{"not riff", []byte("ID3\x03plenty of bytes here"), ErrNotWAV},
		{"riff not wave", []byte("RIFF\x10\x00\x00\x00AVI LIST"), ErrNotWAV},
		{"no chunks", []byte("RIFF\x04\x00\x00\x00WAVE"), ErrMalformedWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRejectsNonPCM(t *testing.T) {
	raw := makeWAV(t, mono16k, []byte{0, 0})
	// Overwrite the format tag with MP3 (0x0055).
	binary.LittleEndian.PutUint16(raw[20:22], 0x0055)
	if _, err := Parse(raw); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Parse error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestEncodeHeaderRecomputesDerivedFields(t *testing.T) {
	f := Format{Channels: 2, SampleRate: 44100, BitsPerSample: 16}
	h := EncodeHeader(f, 1000)

	if len(h) != 44 {
		t.Fatalf("header length = %d", len(h))
	}
	if got := binary.LittleEndian.Uint32(h[4:8]); got != 36+1000 {
		t.Errorf("riff size = %d, want %d", got, 36+1000)
	}
	if got := binary.LittleEndian.Uint32(h[28:32]); got != 44100*4 {
		t.Errorf("byte rate = %d, want %d", got, 44100*4)
	}
	if got := binary.LittleEndian.Uint16(h[32:34]); got != 4 {
		t.Errorf("block align = %d, want 4", got)
	}
	if got := binary.LittleEndian.Uint32(h[40:44]); got != 1000 {
		t.Errorf("data size = %d, want 1000", got)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7F, 0x80}, 321)
	seg, err := Parse(Encode(&Segment{Format: mono16k, Data: payload}))
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if seg.Format != mono16k || !bytes.Equal(seg.Data, payload) {
		t.Errorf("round trip mismatch")
	}
}

func TestDurationMS(t *testing.T) {
	// One second of 16 kHz mono 16-bit audio is 32000 payload bytes.
	seg := Segment{Format: mono16k, Data: make([]byte, 32000)}
	if got := seg.DurationMS(); got != 1000 {
		t.Errorf("DurationMS = %d, want 1000", got)
	}
}
