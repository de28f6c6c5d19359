// Package config handles platform configuration
package config

import (
	"os"
	"strconv"

	"github.com/charvoice/platform/internal/errors"
)

type Config struct {
	HTTPAddr           string
	GeminiAPIKey       string
	LiveModel          string
	LiveHost           string
	CaptureSampleRate  int // Hz, mic side
	PlaybackSampleRate int // Hz, model audio side
	FrameSize          int // samples per capture frame
	CharactersFile     string
	DefaultVoice       string
}

func Load() *Config {
	return &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8000"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		LiveModel:          getEnv("LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		LiveHost:           getEnv("LIVE_HOST", "generativelanguage.googleapis.com"),
		CaptureSampleRate:  getEnvInt("CAPTURE_SAMPLE_RATE", 16000),
		PlaybackSampleRate: getEnvInt("PLAYBACK_SAMPLE_RATE", 24000),
		FrameSize:          getEnvInt("FRAME_SIZE", 4096),
		CharactersFile:     getEnv("CHARACTERS_FILE", ""),
		DefaultVoice:       getEnv("DEFAULT_VOICE", "Kore"),
	}
}

// Validate checks that the configuration can run a live session.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return errors.New(errors.CodeInvalidConfig, "GEMINI_API_KEY is required")
	}
	if c.CaptureSampleRate <= 0 || c.PlaybackSampleRate <= 0 {
		return errors.New(errors.CodeInvalidConfig, "sample rates must be positive")
	}
	if c.FrameSize <= 0 {
		return errors.New(errors.CodeInvalidConfig, "frame size must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
