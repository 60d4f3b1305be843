package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedPCM is returned for payloads that are not whole 16-bit frames.
var ErrMalformedPCM = errors.New("malformed PCM16 payload")

// Buffer is decoded, playable audio: one slice of samples in [-1, 1] per
// channel. Once built it is treated as immutable.
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Len returns the number of frames.
func (b *Buffer) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}

// DecodePCM16 turns a base64 payload of interleaved little-endian int16
// samples into a Buffer, scaling each sample by 1/32768.
func DecodePCM16(raw string, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("decode pcm16: invalid channel count %d", channels)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode pcm16: %w", err)
	}
	if len(data) == 0 || len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("decode pcm16: %d bytes for %d channels: %w", len(data), channels, ErrMalformedPCM)
	}

	frames := len(data) / (2 * channels)
	buf := NewBuffer(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Data[ch][i] = float32(s) / 32768
		}
	}
	return buf, nil
}

// EncodePCM16 is the inverse of DecodePCM16.
func EncodePCM16(b *Buffer) string {
	channels := b.Channels()
	frames := b.Len()
	out := make([]byte, frames*channels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			binary.LittleEndian.PutUint16(out[off:], uint16(toInt16(float64(b.Data[ch][i]))))
		}
	}
	return base64.StdEncoding.EncodeToString(out)
}

// PCM16 interleaves stereo samples as little-endian int16.
func PCM16(samples [][2]float64) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(toInt16(s[0])))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(toInt16(s[1])))
	}
	return out
}

func toInt16(v float64) int16 {
	x := math.Round(v * 32768)
	if x > 32767 {
		x = 32767
	} else if x < -32768 {
		x = -32768
	}
	return int16(x)
}
