package recordings

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestULawDecodeKnownValues(t *testing.T) {
	tests := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},      // positive silence
		{0x7F, 0},      // negative silence
		{0x80, 32124},  // loudest positive
		{0x00, -32124}, // loudest negative
	}

	for _, tt := range tests {
		if got := ulawToPCM[tt.in]; got != tt.want {
			t.Errorf("ulawToPCM[0x%02X] = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncoderWAVHeader(t *testing.T) {
	enc := NewEncoder()
	enc.AppendULaw([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	wav := enc.WAV()
	if len(wav) != 44+8 {
		t.Fatalf("expected 52 bytes, got %d", len(wav))
	}

	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header: %q %q", wav[0:4], wav[8:12])
	}
	if riffSize := binary.LittleEndian.Uint32(wav[4:8]); riffSize != 36+8 {
		t.Errorf("riff size = %d, want %d", riffSize, 36+8)
	}

	if string(wav[12:16]) != "fmt " {
		t.Fatalf("missing fmt chunk: %q", wav[12:16])
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", format)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
	if byteRate := binary.LittleEndian.Uint32(wav[28:32]); byteRate != 16000 {
		t.Errorf("byte rate = %d, want 16000", byteRate)
	}
	if align := binary.LittleEndian.Uint16(wav[32:34]); align != 2 {
		t.Errorf("block align = %d, want 2", align)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}

	if string(wav[36:40]) != "data" {
		t.Fatalf("missing data chunk: %q", wav[36:40])
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:44]); dataLen != 8 {
		t.Errorf("data length = %d, want 8", dataLen)
	}
	if !bytes.Equal(wav[44:], make([]byte, 8)) {
		t.Errorf("expected silence samples, got %v", wav[44:])
	}
}

func TestEncoderDecodesSamples(t *testing.T) {
	enc := NewEncoder()
	enc.AppendULaw([]byte{0x80, 0x00})

	wav := enc.WAV()
	data := wav[44:]
	if len(data) != 4 {
		t.Fatalf("expected 4 PCM bytes, got %d", len(data))
	}

	first := int16(binary.LittleEndian.Uint16(data[0:2]))
	second := int16(binary.LittleEndian.Uint16(data[2:4]))
	if first != 32124 {
		t.Errorf("first sample = %d, want 32124", first)
	}
	if second != -32124 {
		t.Errorf("second sample = %d, want -32124", second)
	}
}

func TestEncoderAccumulatesFrames(t *testing.T) {
	enc := NewEncoder()
	enc.AppendULaw([]byte{0xFF, 0xFF})
	enc.AppendULaw([]byte{0xFF, 0xFF})

	if enc.Len() != 8 {
		t.Errorf("expected 8 PCM bytes after two frames, got %d", enc.Len())
	}
}

func TestEncoderEmptyWAV(t *testing.T) {
	wav := NewEncoder().WAV()
	if len(wav) != 44 {
		t.Fatalf("expected bare 44-byte header, got %d bytes", len(wav))
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:44]); dataLen != 0 {
		t.Errorf("data length = %d, want 0", dataLen)
	}
}
