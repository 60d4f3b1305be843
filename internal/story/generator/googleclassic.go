package generator

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/sirupsen/logrus"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"storyloom/internal/story/audio"
)

const (
	defaultClassicVoice = "en-US-Chirp3-HD-Charon"
	// Requests stay a little under the 5000 byte input limit.
	chunkLimit = 4800
)

// GoogleClassic narrates through Cloud Text-to-Speech and caches the
// synthesized chunks on disk.
type GoogleClassic struct {
	client   *texttospeech.Client
	voice    string
	speed    float64
	volume   float64
	cacheDir string
}

func newGoogleClassicEngine(ctx context.Context, config Config) (*GoogleClassic, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}

	cacheDir := filepath.Join(config.CachePath, "google_classic")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	g := &GoogleClassic{
		client:   client,
		voice:    defaultClassicVoice,
		speed:    config.Speed,
		volume:   config.Volume,
		cacheDir: cacheDir,
	}
	if config.Voice != "" && config.Voice != "default" {
		g.voice = config.Voice
	}
	return g, nil
}

func (g *GoogleClassic) GenerateNarrationAudio(ctx context.Context, text string) (string, error) {
	chunks := splitIntoChunks(text, chunkLimit)
	if len(chunks) == 0 {
		return "", ErrNoContent
	}
	key := md5Sum(text + g.voice)[:12]

	parts := make([]*audio.Buffer, 0, len(chunks))
	for i, chunk := range chunks {
		path := filepath.Join(g.cacheDir, fmt.Sprintf("%s_%d.mp3", key, i))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := g.synthesize(ctx, chunk, path); err != nil {
				return "", fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
			}
			logrus.WithField("path", path).Debug("Cached narration chunk")
		}

		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open cached MP3 %s: %w", path, err)
		}
		buf, err := decodeMP3(f)
		if err != nil {
			return "", fmt.Errorf("chunk %s: %w", path, err)
		}
		parts = append(parts, buf)
	}
	return audio.EncodePCM16(concat(parts)), nil
}

func (g *GoogleClassic) synthesize(ctx context.Context, text, path string) error {
	cfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices reject rate and gain.
	if !strings.Contains(strings.ToLower(g.voice), "chirp") {
		if g.speed > 0 {
			cfg.SpeakingRate = g.speed
		}
		cfg.VolumeGainDb = g.volume
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageCode(g.voice),
			Name:         g.voice,
		},
		AudioConfig: cfg,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, resp.AudioContent, 0644)
}

// Voices lists the voice names the service offers.
func (g *GoogleClassic) Voices(ctx context.Context) ([]string, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, err
	}
	voices := make([]string, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voices = append(voices, v.Name)
	}
	return voices, nil
}

func (g *GoogleClassic) Close() error {
	return g.client.Close()
}

// languageCode takes the locale prefix of a voice name like "en-GB-Neural2-A".
func languageCode(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(strings.TrimSpace(text))
	for i := 0; i < len(runes); i += limit {
		end := min(i+limit, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
