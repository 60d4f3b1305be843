package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"storyloom/internal/story/audio"
)

var ErrUnknownFormat = errors.New("unknown document format")

// Format is the on-disk encoding of a story document.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatFor picks the document format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

func Decode(r io.Reader, f Format) (*Story, error) {
	var s Story
	switch f {
	case JSON:
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode json story: %w", err)
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode yaml story: %w", err)
		}
	default:
		return nil, fmt.Errorf("%q: %w", f, ErrUnknownFormat)
	}
	if s.Mood == "" {
		s.Mood = MoodNone
	}
	return &s, nil
}

func Encode(w io.Writer, s *Story, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%q: %w", f, ErrUnknownFormat)
	}
}

// ReadFile loads a document and restores its narration buffers.
func ReadFile(path string) (*Story, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open story: %w", err)
	}
	defer file.Close()

	s, err := Decode(file, f)
	if err != nil {
		return nil, err
	}
	Restore(s)
	return s, nil
}

func WriteFile(path string, s *Story) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create story file: %w", err)
	}
	if err := Encode(file, s, f); err != nil {
		file.Close()
		return fmt.Errorf("failed to write story: %w", err)
	}
	return file.Close()
}

// Restore decodes narration for every scene that carries a raw payload but
// no buffer. Scenes whose payload fails to decode are logged and left
// without narration. It returns the number of scenes restored.
func Restore(s *Story) int {
	restored := 0
	for i, sc := range s.Scenes {
		if sc.Narration != nil || sc.RawAudio == "" {
			continue
		}
		buf, err := audio.DecodePCM16(sc.RawAudio, int(audio.SampleRate), 1)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"scene": i,
				"id":    sc.ID,
			}).Warn("Skipping narration that failed to decode")
			continue
		}
		sc.Narration = buf
		restored++
	}
	return restored
}
