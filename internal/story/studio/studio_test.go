package studio

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/spf13/cobra"

	"storyloom/internal/config"
	"storyloom/internal/domain/story"
	"storyloom/internal/story/audio"
	"storyloom/internal/story/draft"
	"storyloom/internal/story/export"
	"storyloom/internal/story/generator"
	"storyloom/internal/story/player"
)

type nullBackend struct{}

func (nullBackend) Start(beep.SampleRate, beep.Streamer) error { return nil }
func (nullBackend) Stop()                                      {}

type fakeRecorder struct {
	frames int
}

func (r *fakeRecorder) WriteVideo(frame *image.RGBA) error {
	r.frames++
	return nil
}

func (r *fakeRecorder) Start(ctx context.Context) error { return nil }
func (r *fakeRecorder) WriteAudio(pcm []byte) error     { return nil }
func (r *fakeRecorder) Stop() error                     { return nil }
func (r *fakeRecorder) Abort()                          {}
func (r *fakeRecorder) Fragments() [][]byte             { return [][]byte{[]byte("webm")} }

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Generator: config.GeneratorConfig{Type: "mock", Speech: "mock", Scenes: 2, Concurrency: 2},
		Player:    config.PlayerConfig{Fallback: 20 * time.Millisecond, Volume: 0.08},
		Export:    config.ExportConfig{Dir: dir, Width: 64, Height: 36, FPS: 10},
		Draft:     config.DraftConfig{Dir: filepath.Join(dir, "draft")},
	}
}

func newTestStudio(t *testing.T, cfg *config.Config, input string) (*Studio, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	s := NewStudio(cfg, nil)
	t.Cleanup(s.Cancel)
	s.In = strings.NewReader(input)
	s.Out = out
	s.NewAudioContext = func() *audio.Context { return audio.NewContext(nullBackend{}) }
	return s, out
}

func run(s *Studio, args ...string) error {
	root := &cobra.Command{Use: "storyloom", SilenceUsage: true, SilenceErrors: true}
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	s.AddCommands(root)
	root.SetArgs(args)
	return root.Execute()
}

func writeStory(t *testing.T, scenes int) string {
	t.Helper()
	st := &story.Story{Title: "Quiet Night", Mood: story.MoodNone}
	for i := 0; i < scenes; i++ {
		st.Scenes = append(st.Scenes, story.NewScene("The stars came out.", "stars"))
		if err := st.SetTransition(i, story.Fade, story.MinTransitionMS); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "night.yaml")
	if err := story.WriteFile(path, st); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGenerateWritesStoryAndDraft(t *testing.T) {
	cfg := testConfig(t)
	s, out := newTestStudio(t, cfg, "")
	path := filepath.Join(t.TempDir(), "toaster.json")

	if err := run(s, "generate", "brave", "toaster", "-o", path, "--mood", "suspense", "--draft"); err != nil {
		t.Fatal(err)
	}
	st, err := story.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Scenes) != 2 || st.Mood != story.MoodSuspense {
		t.Fatalf("got %d scenes, mood %q", len(st.Scenes), st.Mood)
	}
	for i, sc := range st.Scenes {
		if sc.Image == "" || sc.Narration == nil {
			t.Errorf("scene %d missing assets", i)
		}
	}
	if !strings.Contains(out.String(), "Saved to "+path) {
		t.Errorf("output = %q", out.String())
	}
	if _, _, err := draft.NewStore(cfg.Draft.Dir, 0).Load(); err != nil {
		t.Errorf("draft not saved: %v", err)
	}
}

func TestGenerateRejectsUnknownMood(t *testing.T) {
	s, _ := newTestStudio(t, testConfig(t), "")
	err := run(s, "generate", "x", "--mood", "jazzy")
	if !errors.Is(err, story.ErrUnknownMood) {
		t.Errorf("err = %v, want ErrUnknownMood", err)
	}
}

func TestDraftCommands(t *testing.T) {
	s, out := newTestStudio(t, testConfig(t), "")
	src := writeStory(t, 2)
	if err := run(s, "draft", "save", src); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "restored.json")
	if err := run(s, "draft", "load", "-o", dst); err != nil {
		t.Fatal(err)
	}
	st, err := story.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if st.Title != "Quiet Night" || len(st.Scenes) != 2 {
		t.Errorf("restored %+v", st)
	}
	if !strings.Contains(out.String(), "Draft (full) written") {
		t.Errorf("output = %q", out.String())
	}

	if err := run(s, "draft", "clear"); err != nil {
		t.Fatal(err)
	}
	if err := run(s, "draft", "load"); !errors.Is(err, draft.ErrNoDraft) {
		t.Errorf("err = %v, want ErrNoDraft", err)
	}
}

func TestMoodsList(t *testing.T) {
	s, out := newTestStudio(t, testConfig(t), "")
	if err := run(s, "moods"); err != nil {
		t.Fatal(err)
	}
	for _, m := range story.Moods {
		if !strings.Contains(out.String(), string(m)) {
			t.Errorf("mood %s not listed", m)
		}
	}
}

func TestMoodsPreviewRejectsSilence(t *testing.T) {
	s, _ := newTestStudio(t, testConfig(t), "")
	if err := run(s, "moods", "none"); !errors.Is(err, story.ErrUnknownMood) {
		t.Errorf("err = %v, want ErrUnknownMood", err)
	}
}

func TestEngines(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("PATH", t.TempDir())

	s, out := newTestStudio(t, testConfig(t), "")
	if err := run(s, "engines"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "mock") {
		t.Errorf("output:\n%s", out.String())
	}

	s, _ = newTestStudio(t, testConfig(t), "")
	if err := run(s, "engines", "--voices"); !errors.Is(err, generator.ErrNoVoiceList) {
		t.Fatalf("err = %v, want ErrNoVoiceList", err)
	}
}

func TestPlayKeyboard(t *testing.T) {
	cfg := testConfig(t)
	cfg.Player.Fallback = time.Hour
	s, out := newTestStudio(t, cfg, "m\nwhat\nq\n")
	if err := run(s, "play", writeStory(t, 2)); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"[1/2]", "Music muted", "Use p, n, b, m, r or q"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "[2/2]") {
		t.Error("advanced past the first scene")
	}
}

func TestPlayRunsToEndWithoutInput(t *testing.T) {
	s, out := newTestStudio(t, testConfig(t), "")
	done := make(chan error, 1)
	go func() { done <- run(s, "play", writeStory(t, 2)) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("play did not finish")
	}
	got := out.String()
	if !strings.Contains(got, "[2/2]") || !strings.Contains(got, "The end.") {
		t.Errorf("output:\n%s", got)
	}
}

func TestPlayEmptyStory(t *testing.T) {
	s, _ := newTestStudio(t, testConfig(t), "")
	if err := run(s, "play", writeStory(t, 0)); err == nil {
		t.Error("expected error for a story without scenes")
	}
}

func TestExport(t *testing.T) {
	cfg := testConfig(t)
	s, out := newTestStudio(t, cfg, "")
	rec := &fakeRecorder{}
	s.NewRecorder = func(export.Settings) export.Recorder { return rec }

	if err := run(s, "export", writeStory(t, 1)); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfg.Export.Dir, "quiet-night.webm")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "webm" {
		t.Errorf("file = %q", data)
	}
	if want := export.FrameCount(export.MinSceneDuration, 10); rec.frames != want {
		t.Errorf("frames = %d, want %d", rec.frames, want)
	}
	if !strings.Contains(out.String(), "100%") {
		t.Errorf("progress never reached 100%%:\n%s", out.String())
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		fraction float64
		hashes   int
	}{
		{0, 0},
		{0.5, barWidth / 2},
		{1, barWidth},
		{1.7, barWidth},
		{-1, 0},
	}
	for _, tt := range tests {
		b := bar(tt.fraction)
		if n := strings.Count(b, "#"); n != tt.hashes {
			t.Errorf("bar(%v) = %s, %d hashes, want %d", tt.fraction, b, n, tt.hashes)
		}
		if len(b) != barWidth+2 {
			t.Errorf("bar(%v) width = %d", tt.fraction, len(b))
		}
	}
}

func TestStageFields(t *testing.T) {
	slide := &story.Scene{Transition: &story.Transition{Type: story.SlideLeft, Duration: 800}}
	tests := []struct {
		name    string
		scene   *story.Scene
		index   int
		stage   player.Stage
		elapsed time.Duration
		want    map[string]any
	}{
		{"slide enters from the right", slide, 0, player.Enter, 0, map[string]any{
			"offset": 1.0, "scale": 1.0, "opacity": 0.0, "camera": "zoom-in", "camera_scale": 1.0,
		}},
		{"active is at rest", slide, 1, player.Active, player.CameraDuration / 2, map[string]any{
			"offset": 0.0, "scale": 1.0, "opacity": 1.0, "camera": "pan-right", "camera_offset": 0.025,
		}},
		{"camera holds after its move", &story.Scene{}, 2, player.Exit, time.Hour, map[string]any{
			"opacity": 0.0, "camera": "zoom-out", "camera_scale": 1.0,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := stageFields(tt.scene, tt.index, tt.stage, tt.elapsed)
			if f["error"] != nil {
				t.Fatalf("error = %v", f["error"])
			}
			for k, want := range tt.want {
				got := f[k]
				if w, ok := want.(float64); ok {
					g, _ := got.(float64)
					if diff := g - w; diff > 1e-9 || diff < -1e-9 {
						t.Errorf("%s = %v, want %v", k, got, want)
					}
					continue
				}
				if got != want {
					t.Errorf("%s = %v, want %v", k, got, want)
				}
			}
		})
	}

	bad := &story.Scene{Transition: &story.Transition{Type: "spin"}}
	if f := stageFields(bad, 0, player.Enter, 0); f["error"] == nil {
		t.Error("unknown transition produced no error")
	}
}
