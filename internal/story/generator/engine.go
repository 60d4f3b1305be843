package generator

import (
	"context"
	"fmt"
	"os"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeGemini        EngineType = "gemini"
	EngineTypeGoogleClassic EngineType = "googleclassic" // speech only
	EngineTypeESpeak        EngineType = "espeak"        // speech only
	EngineTypeAuto          EngineType = "auto"
)

func (e EngineType) String() string {
	return string(e)
}

// NewEngine builds the generators named by config.
func NewEngine(ctx context.Context, config Config) (*Engine, error) {
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		config.Type = bestContentEngine(config).String()
	}
	if config.Speech == "" {
		config.Speech = config.Type
	}
	if config.Speech == EngineTypeAuto.String() {
		config.Speech = bestSpeechEngine(config).String()
	}

	eng := &Engine{Name: config.Type, SpeechName: config.Speech}

	var gemini *Gemini
	geminiClient := func() (*Gemini, error) {
		if gemini != nil {
			return gemini, nil
		}
		g, err := NewGemini(ctx, config)
		if err != nil {
			return nil, err
		}
		gemini = g
		return g, nil
	}

	switch config.Type {
	case EngineTypeMock.String():
		m := NewMock(config)
		eng.Script, eng.Image = m, m
	case EngineTypeGemini.String():
		g, err := geminiClient()
		if err != nil {
			return nil, err
		}
		eng.Script, eng.Image = g, g
	default:
		return nil, fmt.Errorf("unsupported content engine type: %s", config.Type)
	}

	switch config.Speech {
	case EngineTypeMock.String():
		eng.Speech = NewMock(config)
	case EngineTypeGemini.String():
		g, err := geminiClient()
		if err != nil {
			return nil, err
		}
		eng.Speech = g
	case EngineTypeGoogleClassic.String():
		g, err := newGoogleClassicEngine(ctx, config)
		if err != nil {
			return nil, err
		}
		eng.Speech = g
	case EngineTypeESpeak.String():
		e, err := newESpeakEngine(config)
		if err != nil {
			return nil, err
		}
		eng.Speech = e
	default:
		return nil, fmt.Errorf("unsupported speech engine type: %s", config.Speech)
	}
	return eng, nil
}

// bestContentEngine prefers Gemini when a key is configured.
func bestContentEngine(config Config) EngineType {
	if hasGeminiKey(config) {
		return EngineTypeGemini
	}
	return EngineTypeMock
}

func bestSpeechEngine(config Config) EngineType {
	if hasGeminiKey(config) {
		return EngineTypeGemini
	}
	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}
	if _, err := findESpeakExecutable(); err == nil {
		return EngineTypeESpeak
	}
	return EngineTypeMock
}

// GetAvailableEngines returns the speech engines usable on this machine.
func GetAvailableEngines(config Config) []EngineType {
	engines := []EngineType{EngineTypeMock}
	if hasGeminiKey(config) {
		engines = append(engines, EngineTypeGemini)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}
	if _, err := findESpeakExecutable(); err == nil {
		engines = append(engines, EngineTypeESpeak)
	}
	return engines
}

func hasGeminiKey(config Config) bool {
	return config.APIKey != "" || os.Getenv("GEMINI_API_KEY") != ""
}

func hasGoogleCredentials() bool {
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
}
