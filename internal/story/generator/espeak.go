package generator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"storyloom/internal/story/audio"
)

// ESpeak narrates with a local eSpeak or eSpeak NG install.
type ESpeak struct {
	path   string
	voice  string
	speed  float64
	volume float64
}

func newESpeakEngine(config Config) (*ESpeak, error) {
	path, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}
	if err := exec.Command(path, "--version").Run(); err != nil {
		return nil, fmt.Errorf("eSpeak test failed: %w", err)
	}
	return &ESpeak{
		path:   path,
		voice:  config.Voice,
		speed:  config.Speed,
		volume: config.Volume,
	}, nil
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}

// args builds the command line that writes text as WAV to out.
func (e *ESpeak) args(text, out string) []string {
	var args []string
	if e.voice != "" && e.voice != "default" {
		args = append(args, "-v", e.voice)
	}
	// Words per minute, 175 by default.
	speed := 1.0
	if e.speed > 0 {
		speed = e.speed
	}
	args = append(args, "-s", strconv.Itoa(int(175*speed)))
	// Amplitude 0-200, 100 by default.
	volume := 1.0
	if e.volume > 0 {
		volume = e.volume
	}
	args = append(args, "-a", strconv.Itoa(int(100*volume)))
	return append(args, "-w", out, "--", text)
}

func (e *ESpeak) GenerateNarrationAudio(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoContent
	}
	tmp, err := os.CreateTemp("", "storyloom-*.wav")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	cmd := exec.CommandContext(ctx, e.path, e.args(text, path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("eSpeak failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf, err := decodeWAV(f)
	if err != nil {
		return "", err
	}
	return audio.EncodePCM16(buf), nil
}

// Voices lists the installed voice names.
func (e *ESpeak) Voices(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, e.path, "--voices").Output()
	if err != nil {
		return nil, err
	}
	return parseESpeakVoices(string(out)), nil
}

func parseESpeakVoices(output string) []string {
	voices := make([]string, 0)
	for i, line := range strings.Split(output, "\n") {
		// Header: Pty Language Age/Gender VoiceName File Other Languages
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		if fields := strings.Fields(line); len(fields) >= 4 {
			voices = append(voices, fields[3])
		}
	}
	return voices
}
