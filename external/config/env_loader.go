package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/glintworks/murmur/internal/config"
)

type envConfig struct {
	Env            string `env:"ENV" envDefault:"production"`
	DiscordToken   string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID string `env:"DISCORD_GUILD_ID,required"`
	BotDisplayName string `env:"BOT_DISPLAY_NAME,required"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	DefaultVoiceMode string `env:"VOICE_MODE" envDefault:"openai-realtime"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	XAIAPIKey        string `env:"XAI_API_KEY"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en-US"`

	VisionFallbackModel string `env:"VISION_FALLBACK_MODEL" envDefault:"gemini-2.5-flash"`
	ThoughtModel        string `env:"THOUGHT_MODEL" envDefault:"gemini-2.5-flash"`

	MaxSessionDurationMin   int     `env:"MAX_SESSION_DURATION_MIN" envDefault:"180"`
	InactivityTimeoutMin    int     `env:"INACTIVITY_TIMEOUT_MIN" envDefault:"15"`
	PlaybackQueueCapBytes   int     `env:"PLAYBACK_QUEUE_CAP_BYTES" envDefault:"1440000"`
	WakeWordStrictness      string  `env:"WAKE_WORD_STRICTNESS" envDefault:"exact"`
	ThoughtEagerness        float64 `env:"THOUGHT_EAGERNESS" envDefault:"0.3"`
	StreamWatchMaxFrameKB   int     `env:"STREAM_WATCH_MAX_FRAME_KB" envDefault:"2048"`
	StreamWatchFramesPerMin int     `env:"STREAM_WATCH_FRAMES_PER_MIN" envDefault:"6"`
	CommentaryIntervalSec   int     `env:"COMMENTARY_INTERVAL_SEC" envDefault:"45"`

	IngestListenAddr string `env:"INGEST_LISTEN_ADDR" envDefault:":8190"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		DiscordToken:               raw.DiscordToken,
		DiscordGuildID:             raw.DiscordGuildID,
		BotDisplayName:             raw.BotDisplayName,
		DatabaseURL:                raw.DatabaseURL,
		DefaultVoiceMode:           raw.DefaultVoiceMode,
		OpenAIAPIKey:               raw.OpenAIAPIKey,
		GeminiAPIKey:               raw.GeminiAPIKey,
		XAIAPIKey:                  raw.XAIAPIKey,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		VisionFallbackModel:        raw.VisionFallbackModel,
		ThoughtModel:               raw.ThoughtModel,
		MaxSessionDurationMin:      raw.MaxSessionDurationMin,
		InactivityTimeoutMin:       raw.InactivityTimeoutMin,
		PlaybackQueueCapBytes:      raw.PlaybackQueueCapBytes,
		WakeWordStrictness:         raw.WakeWordStrictness,
		ThoughtEagerness:           raw.ThoughtEagerness,
		StreamWatchMaxFrameKB:      raw.StreamWatchMaxFrameKB,
		StreamWatchFramesPerMin:    raw.StreamWatchFramesPerMin,
		CommentaryIntervalSec:      raw.CommentaryIntervalSec,
		IngestListenAddr:           raw.IngestListenAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
