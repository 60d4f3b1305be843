package generator

import (
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"storyloom/internal/story/audio"
)

const resampleQuality = 4

// decodeWAV reads a whole WAV stream into narration-format PCM.
func decodeWAV(r io.Reader) (*audio.Buffer, error) {
	s, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	defer s.Close()
	return collect(s, format.SampleRate)
}

// decodeMP3 reads a whole MP3 stream into narration-format PCM.
func decodeMP3(rc io.ReadCloser) (*audio.Buffer, error) {
	s, format, err := mp3.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	defer s.Close()
	return collect(s, format.SampleRate)
}

// collect drains s, resampling to audio.SampleRate and mixing down to mono.
func collect(s beep.Streamer, rate beep.SampleRate) (*audio.Buffer, error) {
	target := audio.SampleRate
	if rate != target {
		s = beep.Resample(resampleQuality, rate, target, s)
	}

	var mono []float32
	chunk := make([][2]float64, 512)
	for {
		n, ok := s.Stream(chunk)
		for _, frame := range chunk[:n] {
			mono = append(mono, float32((frame[0]+frame[1])/2))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(mono) == 0 {
		return nil, ErrNoContent
	}
	return &audio.Buffer{SampleRate: int(audio.SampleRate), Data: [][]float32{mono}}, nil
}

// concat joins mono buffers end to end.
func concat(parts []*audio.Buffer) *audio.Buffer {
	var mono []float32
	for _, p := range parts {
		mono = append(mono, p.Data[0]...)
	}
	return &audio.Buffer{SampleRate: int(audio.SampleRate), Data: [][]float32{mono}}
}
