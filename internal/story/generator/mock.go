package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"time"

	"storyloom/internal/domain/story"
	"storyloom/internal/story/audio"
)

const (
	defaultScenes = 4

	mockImageWidth  = 320
	mockImageHeight = 180
	mockWordTime    = 300 * time.Millisecond
	mockToneHz      = 220.0
)

var mockBeats = []string{
	"It began quietly, with %s.",
	"Nobody expected what %s would bring.",
	"Then everything about %s changed at once.",
	"In the end, %s was remembered by everyone.",
	"Far away, the echoes of %s kept turning.",
	"And still, %s had one secret left.",
}

// Mock produces deterministic content offline.
type Mock struct {
	scenes int
}

func NewMock(config Config) *Mock {
	n := config.Scenes
	if n <= 0 {
		n = defaultScenes
	}
	return &Mock{scenes: n}
}

func (m *Mock) GenerateScript(ctx context.Context, topic string) (*story.Story, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrNoContent
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &story.Story{
		Title: "The Tale of " + topic,
		Mood:  story.Moods[len(topic)%len(story.Moods)],
	}
	for i := 0; i < m.scenes; i++ {
		text := fmt.Sprintf(mockBeats[i%len(mockBeats)], topic)
		prompt := fmt.Sprintf("Illustration of %s, scene %d, soft painterly light", topic, i+1)
		s.Scenes = append(s.Scenes, story.NewScene(text, prompt))
	}
	return s, nil
}

// GenerateImage paints a two-colour gradient seeded by the prompt.
func (m *Mock) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := fnv.New32a()
	h.Write([]byte(prompt))
	seed := h.Sum32()
	from := color.RGBA{uint8(seed), uint8(seed >> 8), uint8(seed >> 16), 255}
	to := color.RGBA{255 - from.R, 255 - from.G, 255 - from.B, 255}

	img := image.NewRGBA(image.Rect(0, 0, mockImageWidth, mockImageHeight))
	for x := 0; x < mockImageWidth; x++ {
		t := float64(x) / float64(mockImageWidth-1)
		c := color.RGBA{lerp(from.R, to.R, t), lerp(from.G, to.G, t), lerp(from.B, to.B, t), 255}
		for y := 0; y < mockImageHeight; y++ {
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// GenerateNarrationAudio returns a soft tone lasting about as long as the
// text would take to read.
func (m *Mock) GenerateNarrationAudio(ctx context.Context, text string) (string, error) {
	words := len(strings.Fields(text))
	if words == 0 {
		return "", ErrNoContent
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rate := int(audio.SampleRate)
	d := time.Duration(words) * mockWordTime
	buf := audio.NewBuffer(rate, 1, audio.SampleRate.N(d))
	for i := range buf.Data[0] {
		t := float64(i) / float64(rate)
		buf.Data[0][i] = float32(0.2 * math.Sin(2*math.Pi*mockToneHz*t))
	}
	return audio.EncodePCM16(buf), nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}
