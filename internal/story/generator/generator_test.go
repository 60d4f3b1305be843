package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"

	"storyloom/internal/domain/story"
	"storyloom/internal/story/audio"
)

func TestMockScript(t *testing.T) {
	m := NewMock(Config{Scenes: 3})
	s, err := m.GenerateScript(context.Background(), "lost robot")
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Scenes) != 3 {
		t.Fatalf("scenes = %d, want 3", len(s.Scenes))
	}
	if s.Title != "The Tale of lost robot" {
		t.Errorf("title = %q", s.Title)
	}
	if want := story.Moods[len("lost robot")%3]; s.Mood != want {
		t.Errorf("mood = %q, want %q", s.Mood, want)
	}
	ids := map[string]bool{}
	for _, sc := range s.Scenes {
		if sc.Text == "" || sc.ImagePrompt == "" {
			t.Errorf("scene %s missing text or prompt", sc.ID)
		}
		ids[sc.ID] = true
	}
	if len(ids) != 3 {
		t.Errorf("scene IDs not unique: %v", ids)
	}

	if _, err := m.GenerateScript(context.Background(), "   "); !errors.Is(err, ErrNoContent) {
		t.Errorf("empty topic error = %v, want ErrNoContent", err)
	}
}

func TestMockImage(t *testing.T) {
	m := NewMock(Config{})
	url, err := m.GenerateImage(context.Background(), "a lighthouse")
	if err != nil {
		t.Fatal(err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("url = %.40q", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != mockImageWidth || b.Dy() != mockImageHeight {
		t.Errorf("bounds = %v", b)
	}

	again, _ := m.GenerateImage(context.Background(), "a lighthouse")
	if again != url {
		t.Error("same prompt produced a different image")
	}
}

func TestMockNarration(t *testing.T) {
	m := NewMock(Config{})
	raw, err := m.GenerateNarrationAudio(context.Background(), "one two three four five")
	if err != nil {
		t.Fatal(err)
	}
	buf, err := audio.DecodePCM16(raw, int(audio.SampleRate), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := buf.Duration(), 5*mockWordTime; got != want {
		t.Errorf("duration = %v, want %v", got, want)
	}

	if _, err := m.GenerateNarrationAudio(context.Background(), ""); !errors.Is(err, ErrNoContent) {
		t.Errorf("empty text error = %v, want ErrNoContent", err)
	}
}

func TestParseScript(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		scenes int
		mood   story.Mood
		title  string
		err    error
	}{
		{
			name:   "full",
			in:     `{"title":"Moon","mood":"scifi","scenes":[{"text":"a","imagePrompt":"p"},{"text":"b","imagePrompt":"q"}]}`,
			scenes: 2, mood: story.MoodSciFi, title: "Moon",
		},
		{
			name:   "unknown mood and blank scene",
			in:     `{"title":"","mood":"jazzy","scenes":[{"text":" ","imagePrompt":"p"},{"text":"b"}]}`,
			scenes: 1, mood: story.MoodNone, title: "Untitled Story",
		},
		{name: "no scenes", in: `{"title":"x","scenes":[]}`, err: ErrNoContent},
		{name: "empty", in: "  ", err: ErrNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := parseScript(tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(s.Scenes) != tt.scenes || s.Mood != tt.mood || s.Title != tt.title {
				t.Errorf("got %d scenes, mood %q, title %q", len(s.Scenes), s.Mood, s.Title)
			}
		})
	}

	if _, err := parseScript("{not json"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseESpeakVoices(t *testing.T) {
	out := `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  en-gb           --/M      English_(Great_Britain) gmw/en            (en 2)

`
	got := parseESpeakVoices(out)
	want := []string{"Afrikaans", "English_(Great_Britain)"}
	if len(got) != len(want) {
		t.Fatalf("voices = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("voice %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestESpeakArgs(t *testing.T) {
	e := &ESpeak{voice: "en-gb", speed: 1.2, volume: 0.5}
	got := strings.Join(e.args("hello", "/tmp/out.wav"), " ")
	if want := "-v en-gb -s 210 -a 50 -w /tmp/out.wav -- hello"; got != want {
		t.Errorf("args = %q, want %q", got, want)
	}

	e = &ESpeak{voice: "default"}
	got = strings.Join(e.args("hi", "o.wav"), " ")
	if want := "-s 175 -a 100 -w o.wav -- hi"; got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestSplitIntoChunks(t *testing.T) {
	got := splitIntoChunks("héllo world", 4)
	want := []string{"héll", "o wo", "rld"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
	if n := len(splitIntoChunks("  ", 10)); n != 0 {
		t.Errorf("blank text gave %d chunks", n)
	}
}

func TestLanguageCode(t *testing.T) {
	for voice, want := range map[string]string{
		"en-GB-Neural2-A":        "en-GB",
		"de-DE-Chirp3-HD-Charon": "de-DE",
		"weird":                  "en-US",
	} {
		if got := languageCode(voice); got != want {
			t.Errorf("languageCode(%q) = %q, want %q", voice, got, want)
		}
	}
}

func TestDecodeWAVResamplesToMono(t *testing.T) {
	const frames = 4800
	format := beep.Format{SampleRate: 48000, NumChannels: 2, Precision: 2}
	left := frames
	src := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if left == 0 {
			return 0, false
		}
		n := min(len(samples), left)
		for i := range samples[:n] {
			samples[i] = [2]float64{0.5, 0.3}
		}
		left -= n
		return n, true
	})

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := wav.Encode(f, src, format); err != nil {
		t.Fatal(err)
	}
	f.Close()

	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	buf, err := decodeWAV(in)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Channels() != 1 || buf.SampleRate != int(audio.SampleRate) {
		t.Fatalf("got %d channels at %d Hz", buf.Channels(), buf.SampleRate)
	}
	if n := buf.Len(); n < frames/2-10 || n > frames/2+10 {
		t.Errorf("frames = %d, want about %d", n, frames/2)
	}
	if v := buf.Data[0][buf.Len()/2]; math.Abs(float64(v)-0.4) > 0.02 {
		t.Errorf("mid sample = %v, want about 0.4", v)
	}
}

type scriptedEngine struct {
	failImage map[string]bool
	failVoice map[string]bool
	delay     time.Duration
	active    atomic.Int32
	peak      atomic.Int32
	calls     atomic.Int32
}

func (e *scriptedEngine) enter() func() {
	e.calls.Add(1)
	n := e.active.Add(1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(e.delay)
	return func() { e.active.Add(-1) }
}

func (e *scriptedEngine) GenerateScript(ctx context.Context, topic string) (*story.Story, error) {
	if topic == "" {
		return nil, ErrNoContent
	}
	s := &story.Story{Title: topic, Mood: story.MoodEthereal}
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		s.Scenes = append(s.Scenes, story.NewScene(text, "draw "+text))
	}
	return s, nil
}

func (e *scriptedEngine) GenerateImage(ctx context.Context, prompt string) (string, error) {
	defer e.enter()()
	if e.failImage[prompt] {
		return "", errors.New("image quota")
	}
	return "data:image/png;base64,AAAA", nil
}

func (e *scriptedEngine) GenerateNarrationAudio(ctx context.Context, text string) (string, error) {
	defer e.enter()()
	if e.failVoice[text] {
		return "", errors.New("voice unavailable")
	}
	if text == "five" {
		return "not base64!", nil
	}
	return audio.EncodePCM16(audio.NewBuffer(int(audio.SampleRate), 1, 2400)), nil
}

func newScripted() (*scriptedEngine, *Engine) {
	e := &scriptedEngine{
		failImage: map[string]bool{"draw two": true},
		failVoice: map[string]bool{"three": true},
	}
	return e, &Engine{Script: e, Image: e, Speech: e, Name: "scripted", SpeechName: "scripted"}
}

func TestProducerDegradesPerScene(t *testing.T) {
	_, eng := newScripted()
	var last, total int
	p := NewProducer(eng, nil)
	p.OnProgress = func(done, n int) {
		last, total = max(last, done), n
	}

	s, err := p.Produce(context.Background(), "river")
	if err != nil {
		t.Fatal(err)
	}
	if total != 10 || last != 10 {
		t.Errorf("progress ended at %d/%d, want 10/10", last, total)
	}
	for i, sc := range s.Scenes {
		wantImage := i != 1
		wantVoice := i != 2 && i != 4
		if (sc.Image != "") != wantImage {
			t.Errorf("scene %d image present = %v", i, sc.Image != "")
		}
		if (sc.Narration != nil) != wantVoice || (sc.RawAudio != "") != wantVoice {
			t.Errorf("scene %d narration present = %v, raw = %v", i, sc.Narration != nil, sc.RawAudio != "")
		}
	}
	if d := s.Scenes[0].NarrationDuration(); d != 100*time.Millisecond {
		t.Errorf("narration duration = %v", d)
	}
}

func TestProducerRespectsConcurrency(t *testing.T) {
	e, eng := newScripted()
	e.delay = 5 * time.Millisecond
	p := NewProducer(eng, nil)
	p.Concurrency = 2
	if _, err := p.Produce(context.Background(), "river"); err != nil {
		t.Fatal(err)
	}
	if peak := e.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestProducerSkipsExistingAssets(t *testing.T) {
	e, eng := newScripted()
	s, _ := e.GenerateScript(context.Background(), "x")
	for _, sc := range s.Scenes {
		sc.Image = "data:image/png;base64,BBBB"
		sc.RawAudio = "AAAA"
	}
	if err := NewProducer(eng, nil).Assets(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if n := e.calls.Load(); n != 0 {
		t.Errorf("made %d asset calls, want 0", n)
	}
}

func TestProducerScriptFailureIsFatal(t *testing.T) {
	_, eng := newScripted()
	_, err := NewProducer(eng, nil).Produce(context.Background(), "")
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("err = %v, want ErrNoContent", err)
	}
}

func TestProducerCancelled(t *testing.T) {
	_, eng := newScripted()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _ := NewMock(Config{}).GenerateScript(context.Background(), "x")
	if err := NewProducer(eng, nil).Assets(ctx, s); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewEngineFallsBackToMock(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("PATH", t.TempDir())

	eng, err := NewEngine(context.Background(), Config{Type: "auto", Speech: "auto"})
	if err != nil {
		t.Fatal(err)
	}
	if eng.Name != "mock" || eng.SpeechName != "mock" {
		t.Errorf("engines = %s/%s, want mock/mock", eng.Name, eng.SpeechName)
	}
	if _, ok := eng.Script.(*Mock); !ok {
		t.Errorf("script engine = %T", eng.Script)
	}

	if got := GetAvailableEngines(Config{}); len(got) != 1 || got[0] != EngineTypeMock {
		t.Errorf("available = %v", got)
	}
	if got := GetAvailableEngines(Config{APIKey: "k"}); len(got) != 2 || got[1] != EngineTypeGemini {
		t.Errorf("available with key = %v", got)
	}
}

func TestEngineVoices(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\n" +
		"printf '%s\\n' 'Pty Language Age/Gender VoiceName File Other' ' 5  af  --/M  Afrikaans  gmw/af' ' 5  en-gb  --/M  English  gmw/en'\n"
	if err := os.WriteFile(filepath.Join(dir, "espeak-ng"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)

	eng, err := NewEngine(context.Background(), Config{Type: "mock", Speech: "espeak"})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	voices, err := eng.Voices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(voices) != 2 || voices[0] != "Afrikaans" || voices[1] != "English" {
		t.Errorf("voices = %v", voices)
	}

	mock, err := NewEngine(context.Background(), Config{Type: "mock", Speech: "mock"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mock.Voices(context.Background()); !errors.Is(err, ErrNoVoiceList) {
		t.Errorf("mock voices err = %v, want ErrNoVoiceList", err)
	}
}

func TestNewEngineRejectsUnknownTypes(t *testing.T) {
	if _, err := NewEngine(context.Background(), Config{Type: "espeak"}); err == nil {
		t.Error("espeak accepted as content engine")
	}
	if _, err := NewEngine(context.Background(), Config{Type: "mock", Speech: "sapi"}); err == nil {
		t.Error("unknown speech engine accepted")
	}
}

func TestBestSpeechEngine(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("PATH", t.TempDir())
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/creds.json")
	if got := bestSpeechEngine(Config{}); got != EngineTypeGoogleClassic {
		t.Errorf("with credentials = %s", got)
	}
	if got := bestSpeechEngine(Config{APIKey: "k"}); got != EngineTypeGemini {
		t.Errorf("with key = %s", got)
	}
}
