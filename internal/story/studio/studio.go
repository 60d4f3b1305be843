// Package studio is the storyloom command-line application: it generates,
// plays, exports and drafts stories.
package studio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"storyloom/internal/cli/scheme/colours"
	"storyloom/internal/config"
	"storyloom/internal/domain/story"
	"storyloom/internal/observe"
	"storyloom/internal/story/audio"
	"storyloom/internal/story/export"
	"storyloom/internal/story/generator"
)

// Studio main application structure
type Studio struct {
	Config  *config.Config
	Metrics *observe.Metrics

	In  io.Reader
	Out io.Writer

	// NewAudioContext returns the output used by play and moods.
	NewAudioContext func() *audio.Context
	// NewRecorder overrides the ffmpeg recorder used by export.
	NewRecorder func(export.Settings) export.Recorder

	ctx    context.Context
	Cancel context.CancelFunc
	outMu  sync.Mutex
}

func NewStudio(cfg *config.Config, metrics *observe.Metrics) *Studio {
	ctx, cancel := context.WithCancel(context.Background())
	return &Studio{
		Config:          cfg,
		Metrics:         metrics,
		In:              os.Stdin,
		Out:             os.Stdout,
		NewAudioContext: audio.GetContext,
		ctx:             ctx,
		Cancel:          cancel,
	}
}

func (s *Studio) Context() context.Context {
	return s.ctx
}

func (s *Studio) ShowWelcome(cmd *cobra.Command, args []string) {
	s.println()
	s.print(colours.Title, "Welcome to storyloom\n")
	s.println()
	s.print(colours.Info, "Available commands:\n")
	s.printf("  storyloom generate <topic>  - Write and illustrate a new story\n")
	s.printf("  storyloom play <file>       - Play a story with narration and music\n")
	s.printf("  storyloom export <file>     - Render a story to a WebM video\n")
	s.printf("  storyloom moods [mood]      - List or preview the ambient moods\n")
	s.printf("  storyloom engines           - Show the usable speech engines\n")
	s.printf("  storyloom draft save|load   - Keep a story between sessions\n")
	s.println()
}

// AddCommands attaches every storyloom subcommand to root.
func (s *Studio) AddCommands(root *cobra.Command) {
	generateCmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Write and illustrate a new story",
		Args:  cobra.MinimumNArgs(1),
		RunE:  s.Generate,
	}
	generateCmd.Flags().StringP("out", "o", "", "Story file to write (.json or .yaml)")
	generateCmd.Flags().IntP("scenes", "n", 0, "Number of scenes")
	generateCmd.Flags().StringP("mood", "m", "", "Override the ambient mood")
	generateCmd.Flags().Bool("draft", false, "Also save the story as the current draft")

	playCmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a story with narration and music",
		Args:  cobra.ExactArgs(1),
		RunE:  s.Play,
	}

	exportCmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Render a story to a WebM video",
		Args:  cobra.ExactArgs(1),
		RunE:  s.Export,
	}
	exportCmd.Flags().StringP("dir", "d", "", "Output directory")
	exportCmd.Flags().Bool("realtime", false, "Pace rendering at the frame rate")

	moodsCmd := &cobra.Command{
		Use:   "moods [mood]",
		Short: "List or preview the ambient moods",
		Args:  cobra.MaximumNArgs(1),
		RunE:  s.Moods,
	}
	moodsCmd.Flags().Duration("for", 0, "Preview length (default until Enter)")

	enginesCmd := &cobra.Command{
		Use:   "engines",
		Short: "Show the usable speech engines",
		RunE:  s.Engines,
	}
	enginesCmd.Flags().Bool("voices", false, "List the voices of the configured speech engine")

	root.AddCommand(generateCmd, playCmd, exportCmd, moodsCmd, enginesCmd)
	s.AddDraftCommands(root)
}

func (s *Studio) generatorConfig() generator.Config {
	g := s.Config.Generator
	return generator.Config{
		Type:        g.Type,
		Speech:      g.Speech,
		APIKey:      g.APIKey,
		ScriptModel: g.ScriptModel,
		ImageModel:  g.ImageModel,
		SpeechModel: g.SpeechModel,
		Voice:       g.Voice,
		Speed:       g.Speed,
		Volume:      g.Volume,
		CachePath:   g.CacheDir,
		Scenes:      g.Scenes,
	}
}

func (s *Studio) Generate(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")
	out, _ := cmd.Flags().GetString("out")
	scenes, _ := cmd.Flags().GetInt("scenes")
	moodName, _ := cmd.Flags().GetString("mood")
	toDraft, _ := cmd.Flags().GetBool("draft")

	var mood *story.Mood
	if moodName != "" {
		m, err := story.ParseMood(moodName)
		if err != nil {
			return err
		}
		mood = &m
	}

	gc := s.generatorConfig()
	if scenes > 0 {
		gc.Scenes = scenes
	}
	eng, err := generator.NewEngine(s.ctx, gc)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	defer eng.Close()

	s.print(colours.Info, "Generating %q with %s (speech: %s)\n", topic, eng.Name, eng.SpeechName)
	p := generator.NewProducer(eng, s.Metrics)
	p.Concurrency = s.Config.Generator.Concurrency
	p.OnProgress = func(done, total int) {
		s.printf("\r  assets %d/%d", done, total)
	}
	st, err := p.Produce(s.ctx, topic)
	s.println()
	if err != nil {
		return err
	}
	if mood != nil {
		st.Mood = *mood
	}

	if out == "" {
		out = st.Slug() + ".json"
	}
	if err := story.WriteFile(out, st); err != nil {
		return err
	}
	s.showStory(st)
	s.print(colours.Success, "Saved to %s\n", out)

	if toDraft {
		return s.saveDraft(st)
	}
	return nil
}

func (s *Studio) showStory(st *story.Story) {
	s.println()
	s.print(colours.Title, "%s\n", st.Title)
	s.print(colours.Mood, "  mood: %s\n", st.Mood)
	for i, sc := range st.Scenes {
		s.print(colours.Scene, "  %d. ", i+1)
		s.printf("%s\n", sc.Text)
		var missing []string
		if sc.Image == "" {
			missing = append(missing, "image")
		}
		if sc.Narration == nil {
			missing = append(missing, "narration")
		}
		if len(missing) > 0 {
			s.print(colours.Warning, "     no %s\n", strings.Join(missing, " or "))
		}
	}
	s.println()
}

func (s *Studio) Engines(cmd *cobra.Command, args []string) error {
	s.print(colours.Title, "Speech engines\n")
	for _, e := range generator.GetAvailableEngines(s.generatorConfig()) {
		s.printf("  %s\n", e)
	}
	if listVoices, _ := cmd.Flags().GetBool("voices"); !listVoices {
		return nil
	}

	eng, err := generator.NewEngine(s.ctx, s.generatorConfig())
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	defer eng.Close()
	voices, err := eng.Voices(s.ctx)
	if err != nil {
		return err
	}
	s.print(colours.Title, "\nVoices (%s)\n", eng.SpeechName)
	for _, v := range voices {
		s.printf("  %s\n", v)
	}
	return nil
}

// lines feeds s.In to a channel, one trimmed lowercase line at a time. The
// channel closes at end of input. Closing stop abandons the reader.
func (s *Studio) lines(stop <-chan struct{}) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		reader := bufio.NewReader(s.In)
		for {
			input, err := reader.ReadString('\n')
			if input != "" || err == nil {
				select {
				case ch <- strings.TrimSpace(strings.ToLower(input)):
				case <-stop:
					return
				case <-s.ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

func (s *Studio) print(c *color.Color, format string, a ...interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	c.Fprintf(s.Out, format, a...)
}

func (s *Studio) printf(format string, a ...interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.Out, format, a...)
}

func (s *Studio) println() {
	s.printf("\n")
}
