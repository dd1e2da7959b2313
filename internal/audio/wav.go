// Package audio parses and reassembles WAV segments. Page workers produce one
// independently encoded PCM segment per page; Reassemble merges them into a
// single well-formed stream by walking each segment's RIFF chunk list,
// extracting the raw sample payload, and writing one canonical header with
// recomputed sizes. Headers are parsed, never skipped by a fixed offset: a
// segment with an extended fmt chunk or extra metadata chunks (LIST, fact)
// merges just as cleanly as a minimal one.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sentinel errors for WAV parsing.
var (
	// ErrNotWAV is returned when the data is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("not a WAV file")

	// ErrMalformedWAV is returned for a truncated or inconsistent container.
	ErrMalformedWAV = errors.New("malformed WAV file")

	// ErrUnsupportedFormat is returned for non-PCM encodings.
	ErrUnsupportedFormat = errors.New("unsupported WAV format")
)

const (
	formatPCM = 1
	// WAVE_FORMAT_EXTENSIBLE wraps another format; the real one sits in
	// the extension. PCM is the only wrapped format accepted.
	formatExtensible = 0xFFFE

	canonicalHeaderSize = 44
)

// Format is the PCM sample format shared by all segments of a stream.
type Format struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// BytesPerFrame returns the size of one sample frame across all channels.
func (f Format) BytesPerFrame() int {
	return int(f.Channels) * int(f.BitsPerSample) / 8
}

func (f Format) String() string {
	return fmt.Sprintf("%dch/%dHz/%dbit", f.Channels, f.SampleRate, f.BitsPerSample)
}

// Segment is one parsed WAV file: its format and the raw sample payload.
type Segment struct {
	Format Format
	Data   []byte
}

// DurationMS returns the segment's play time in milliseconds.
func (s Segment) DurationMS() int64 {
	bytesPerSecond := int64(s.Format.SampleRate) * int64(s.Format.BytesPerFrame())
	if bytesPerSecond == 0 {
		return 0
	}
	return int64(len(s.Data)) * 1000 / bytesPerSecond
}

// Parse decodes a WAV container by walking its chunk list. It accepts
// extended fmt chunks and ignores unknown chunks, requiring only that a PCM
// fmt chunk precedes the data chunk.
func Parse(data []byte) (*Segment, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		format   *Format
		payload  []byte
		haveData bool
	)

	// Chunk list: 8-byte header (ID + little-endian size), then the body,
	// padded to an even byte count.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// A truncated final data chunk still plays; clamp it.
			if id == "data" && body < len(data) {
				size = len(data) - body
			} else {
				return nil, fmt.Errorf("%w: %s chunk overruns container", ErrMalformedWAV, id)
			}
		}

		switch id {
		case "fmt ":
			f, err := parseFmtChunk(data[body : body+size])
			if err != nil {
				return nil, err
			}
			format = f
		case "data":
			payload = data[body : body+size]
			haveData = true
		}
		if haveData && format != nil {
			break
		}

		off = body + size
		if size%2 == 1 {
			off++ // pad byte
		}
	}

	if format == nil {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrMalformedWAV)
	}
	if !haveData {
		return nil, fmt.Errorf("%w: missing data chunk", ErrMalformedWAV)
	}
	return &Segment{Format: *format, Data: payload}, nil
}

func parseFmtChunk(body []byte) (*Format, error) {
	if len(body) < 16 {
		return nil, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrMalformedWAV, len(body))
	}

	tag := binary.LittleEndian.Uint16(body[0:2])
	f := Format{
		Channels:      binary.LittleEndian.Uint16(body[2:4]),
		SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
		BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
	}

	switch tag {
	case formatPCM:
	case formatExtensible:
		// Extensible fmt carries the real format tag as the first two
		// bytes of the subformat GUID.
		if len(body) < 26 {
			return nil, fmt.Errorf("%w: extensible fmt chunk too short", ErrMalformedWAV)
		}
		if sub := binary.LittleEndian.Uint16(body[24:26]); sub != formatPCM {
			return nil, fmt.Errorf("%w: extensible subformat %d", ErrUnsupportedFormat, sub)
		}
	default:
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, tag)
	}

	if f.Channels == 0 || f.SampleRate == 0 || f.BitsPerSample == 0 || f.BitsPerSample%8 != 0 {
		return nil, fmt.Errorf("%w: implausible format %s", ErrMalformedWAV, f)
	}
	return &f, nil
}

// EncodeHeader writes the canonical 44-byte PCM header for dataLen payload
// bytes in the given format. All derived fields (byte rate, block align,
// RIFF size) are recomputed; nothing from any source header is reused.
func EncodeHeader(f Format, dataLen int) []byte {
	blockAlign := uint16(f.BytesPerFrame())
	byteRate := f.SampleRate * uint32(blockAlign)

	h := make([]byte, canonicalHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(canonicalHeaderSize-8+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], f.Channels)
	binary.LittleEndian.PutUint32(h[24:28], f.SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], f.BitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}

// Encode returns a complete WAV file for the segment.
func Encode(s *Segment) []byte {
	out := make([]byte, 0, canonicalHeaderSize+len(s.Data))
	out = append(out, EncodeHeader(s.Format, len(s.Data))...)
	return append(out, s.Data...)
}
