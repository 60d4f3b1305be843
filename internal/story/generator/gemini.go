package generator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"storyloom/internal/domain/story"
)

const (
	defaultScriptModel = "gemini-2.5-flash"
	defaultImageModel  = "imagen-4.0-generate-001"
	defaultSpeechModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice = "Kore"
)

// Gemini generates scripts, images and narration through the Gemini API.
type Gemini struct {
	client      *genai.Client
	scriptModel string
	imageModel  string
	speechModel string
	voice       string
	scenes      int
}

func NewGemini(ctx context.Context, config Config) (*Gemini, error) {
	key := config.APIKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := &Gemini{
		client:      client,
		scriptModel: orDefault(config.ScriptModel, defaultScriptModel),
		imageModel:  orDefault(config.ImageModel, defaultImageModel),
		speechModel: orDefault(config.SpeechModel, defaultSpeechModel),
		voice:       defaultGeminiVoice,
		scenes:      config.Scenes,
	}
	if config.Voice != "" && config.Voice != "default" {
		g.voice = config.Voice
	}
	if g.scenes <= 0 {
		g.scenes = defaultScenes
	}
	return g, nil
}

var scriptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {Type: genai.TypeString},
		"mood": {
			Type: genai.TypeString,
			Enum: []string{"ethereal", "suspense", "scifi", "none"},
		},
		"scenes": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"text":        {Type: genai.TypeString},
					"imagePrompt": {Type: genai.TypeString},
				},
				Required: []string{"text", "imagePrompt"},
			},
		},
	},
	Required: []string{"title", "scenes"},
}

func (g *Gemini) GenerateScript(ctx context.Context, topic string) (*story.Story, error) {
	prompt := fmt.Sprintf(
		"Write a short illustrated story about %q in exactly %d scenes. "+
			"Each scene has one or two sentences of narration and a detailed prompt for its illustration. "+
			"Pick the background music mood that fits best.", topic, g.scenes)

	resp, err := g.client.Models.GenerateContent(ctx, g.scriptModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   scriptSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate script: %w", err)
	}
	return parseScript(resp.Text())
}

type scriptDoc struct {
	Title  string `json:"title"`
	Mood   string `json:"mood"`
	Scenes []struct {
		Text        string `json:"text"`
		ImagePrompt string `json:"imagePrompt"`
	} `json:"scenes"`
}

// parseScript turns a JSON script into a story with fresh scene IDs.
func parseScript(text string) (*story.Story, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoContent
	}
	var doc scriptDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	mood, err := story.ParseMood(doc.Mood)
	if err != nil {
		logrus.WithError(err).Warn("Ignoring unknown mood in script")
	}
	s := &story.Story{Title: strings.TrimSpace(doc.Title), Mood: mood}
	for _, sc := range doc.Scenes {
		if strings.TrimSpace(sc.Text) == "" {
			continue
		}
		s.Scenes = append(s.Scenes, story.NewScene(sc.Text, sc.ImagePrompt))
	}
	if len(s.Scenes) == 0 {
		return nil, ErrNoContent
	}
	if s.Title == "" {
		s.Title = "Untitled Story"
	}
	return s, nil
}

func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "16:9",
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil ||
		len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return "", ErrNoContent
	}
	img := resp.GeneratedImages[0].Image
	mime := orDefault(img.MIMEType, "image/png")
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.ImageBytes), nil
}

func (g *Gemini) GenerateNarrationAudio(ctx context.Context, text string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.speechModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate narration: %w", err)
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return base64.StdEncoding.EncodeToString(p.InlineData.Data), nil
			}
		}
	}
	return "", ErrNoContent
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
