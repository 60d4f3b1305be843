// Package generator produces story content: the script, one image per scene
// and narration audio. Backends are picked by EngineType the same way for
// every kind of content; Producer drives them for a whole story.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"storyloom/internal/domain/story"
)

// ErrNoContent is returned when a backend answers without usable content.
var ErrNoContent = errors.New("no content produced")

var ErrNoVoiceList = errors.New("speech engine cannot list voices")

// ScriptGenerator writes a story for a topic.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, topic string) (*story.Story, error)
}

// ImageGenerator illustrates a scene. The result is a data URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// SpeechGenerator narrates text. The result is base64 PCM16, 24 kHz mono.
type SpeechGenerator interface {
	GenerateNarrationAudio(ctx context.Context, text string) (string, error)
}

// VoiceLister is implemented by speech backends with a voice catalogue.
type VoiceLister interface {
	Voices(ctx context.Context) ([]string, error)
}

type Config struct {
	// Type selects the script and image backend.
	Type string
	// Speech selects the narration backend. Empty means the same as Type.
	Speech string

	APIKey      string
	ScriptModel string
	ImageModel  string
	SpeechModel string
	Voice       string
	Speed       float64
	Volume      float64
	CachePath   string
	Scenes      int
}

// Engine bundles the three generators chosen for a run.
type Engine struct {
	Script     ScriptGenerator
	Image      ImageGenerator
	Speech     SpeechGenerator
	Name       string
	SpeechName string
}

// Voices lists the voices of the speech backend.
func (e *Engine) Voices(ctx context.Context) ([]string, error) {
	l, ok := e.Speech.(VoiceLister)
	if !ok {
		return nil, fmt.Errorf("%s: %w", e.SpeechName, ErrNoVoiceList)
	}
	return l.Voices(ctx)
}

// Close releases backend clients that hold connections.
func (e *Engine) Close() error {
	if c, ok := e.Speech.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
