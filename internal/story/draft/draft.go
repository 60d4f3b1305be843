// Package draft keeps the story being edited on disk between sessions.
package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"storyloom/internal/domain/story"
)

var (
	ErrQuotaExceeded = errors.New("draft exceeds storage quota")
	ErrNoDraft       = errors.New("no saved draft")
)

// DefaultQuota mirrors the few megabytes browsers grant local storage.
const DefaultQuota = 5 << 20

// Level records how much of a story a saved draft kept.
type Level int

const (
	LevelFull Level = iota
	LevelNoImages
	LevelNoAudio
)

func (l Level) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelNoImages:
		return "without images"
	case LevelNoAudio:
		return "without images or audio"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Store saves a single draft under a directory.
type Store struct {
	dir   string
	file  string
	quota int
}

type savedDraft struct {
	Story   *story.Story `json:"story"`
	SavedAt time.Time    `json:"saved_at"`
	Level   Level        `json:"level"`
}

// NewStore creates a store in dir. A quota of zero or less means DefaultQuota.
func NewStore(dir string, quota int) *Store {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Store{
		dir:   dir,
		file:  filepath.Join(dir, "draft.json"),
		quota: quota,
	}
}

func (s *Store) Path() string {
	return s.file
}

// Save writes st, dropping images and then narration audio until the
// encoded draft fits the quota. It returns the level that was written.
func (s *Store) Save(st *story.Story) (Level, error) {
	for level := LevelFull; level <= LevelNoAudio; level++ {
		data, err := json.Marshal(savedDraft{
			Story:   strip(st, level),
			SavedAt: time.Now(),
			Level:   level,
		})
		if err != nil {
			return level, fmt.Errorf("failed to encode draft: %w", err)
		}
		if len(data) > s.quota {
			logrus.WithFields(logrus.Fields{
				"level": level.String(),
				"bytes": len(data),
				"quota": s.quota,
			}).Debug("Draft over quota")
			continue
		}
		if err := s.write(data); err != nil {
			return level, err
		}
		if level != LevelFull {
			logrus.WithField("level", level.String()).Warn("Draft saved with assets dropped")
		}
		return level, nil
	}
	return LevelNoAudio, ErrQuotaExceeded
}

func (s *Store) write(data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create draft directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "draft-*.json")
	if err != nil {
		return fmt.Errorf("failed to create draft file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write draft: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.file)
}

// Load reads the saved draft and decodes its narration.
func (s *Store) Load() (*story.Story, Level, error) {
	f, err := os.Open(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNoDraft
		}
		return nil, 0, fmt.Errorf("failed to open draft: %w", err)
	}
	defer f.Close()

	var saved savedDraft
	if err := json.NewDecoder(f).Decode(&saved); err != nil {
		return nil, 0, fmt.Errorf("failed to decode draft: %w", err)
	}
	if saved.Story == nil {
		return nil, 0, ErrNoDraft
	}
	if saved.Story.Mood == "" {
		saved.Story.Mood = story.MoodNone
	}
	story.Restore(saved.Story)

	logrus.WithFields(logrus.Fields{
		"scenes":   len(saved.Story.Scenes),
		"saved_at": saved.SavedAt.Format(time.RFC3339),
		"level":    saved.Level.String(),
	}).Info("Loaded draft")
	return saved.Story, saved.Level, nil
}

// Clear removes the saved draft, if any.
func (s *Store) Clear() error {
	if err := os.Remove(s.file); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// strip returns st with the assets level drops. st itself is not modified.
func strip(st *story.Story, level Level) *story.Story {
	if level == LevelFull {
		return st
	}
	out := *st
	out.Scenes = make([]*story.Scene, len(st.Scenes))
	for i, sc := range st.Scenes {
		c := *sc
		c.Image = ""
		if level >= LevelNoAudio {
			c.RawAudio = ""
		}
		out.Scenes[i] = &c
	}
	return &out
}
