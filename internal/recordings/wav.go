package recordings

import (
	"bytes"
	"encoding/binary"
)

// Telephony audio arrives as 8kHz mono G.711 mu-law. Recordings are stored
// as 16-bit PCM WAV so they play anywhere.
const (
	sampleRate     = 8000
	channels       = 1
	bytesPerSample = 2

	ulawBias = 0x84
)

// ulawToPCM expands one mu-law byte to a linear 16-bit sample.
var ulawToPCM [256]int16

func init() {
	for i := range ulawToPCM {
		u := ^byte(i)
		t := (int(u)&0x0F)<<3 + ulawBias
		t <<= (int(u) & 0x70) >> 4
		if u&0x80 != 0 {
			ulawToPCM[i] = int16(ulawBias - t)
		} else {
			ulawToPCM[i] = int16(t - ulawBias)
		}
	}
}

// Encoder accumulates mu-law frames for one call and renders them as a
// complete WAV file. Not safe for concurrent use; each call gets its own.
type Encoder struct {
	pcm bytes.Buffer
}

// NewEncoder creates an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// AppendULaw decodes one mu-law frame into the PCM buffer.
func (e *Encoder) AppendULaw(frame []byte) {
	for _, b := range frame {
		sample := ulawToPCM[b]
		e.pcm.WriteByte(byte(sample))
		e.pcm.WriteByte(byte(sample >> 8))
	}
}

// Len returns the accumulated PCM byte count.
func (e *Encoder) Len() int {
	return e.pcm.Len()
}

// WAV renders the accumulated samples as a WAV file: 44-byte RIFF header
// followed by the little-endian PCM data.
func (e *Encoder) WAV() []byte {
	data := e.pcm.Bytes()
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(data)))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes()
}
