package config

import (
	"fmt"
)

const (
	VoiceModeOpenAIRealtime = "openai-realtime"
	VoiceModeGeminiRealtime = "gemini-realtime"
	VoiceModeXAIRealtime    = "xai-realtime"
	VoiceModeSTTPipeline    = "stt-pipeline"
)

type Config struct {
	Env string

	DiscordToken   string
	DiscordGuildID string
	BotDisplayName string

	DatabaseURL string

	DefaultVoiceMode string
	OpenAIAPIKey     string
	GeminiAPIKey     string
	XAIAPIKey        string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DefaultTranscribeLanguage  string

	VisionFallbackModel string
	ThoughtModel        string

	MaxSessionDurationMin   int
	InactivityTimeoutMin    int
	PlaybackQueueCapBytes   int
	WakeWordStrictness      string
	ThoughtEagerness        float64
	StreamWatchMaxFrameKB   int
	StreamWatchFramesPerMin int
	CommentaryIntervalSec   int

	IngestListenAddr string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.DefaultVoiceMode {
	case VoiceModeOpenAIRealtime:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when VOICE_MODE=%s", c.DefaultVoiceMode)
		}
	case VoiceModeGeminiRealtime:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when VOICE_MODE=%s", c.DefaultVoiceMode)
		}
	case VoiceModeXAIRealtime:
		if c.XAIAPIKey == "" {
			return fmt.Errorf("XAI_API_KEY is required when VOICE_MODE=%s", c.DefaultVoiceMode)
		}
	case VoiceModeSTTPipeline:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when VOICE_MODE=%s", c.DefaultVoiceMode)
		}
	default:
		return fmt.Errorf("VOICE_MODE is invalid: %q", c.DefaultVoiceMode)
	}
	switch c.WakeWordStrictness {
	case "exact", "fuzzy":
	default:
		return fmt.Errorf("WAKE_WORD_STRICTNESS must be exact or fuzzy, got %q", c.WakeWordStrictness)
	}
	if c.MaxSessionDurationMin <= 0 {
		return fmt.Errorf("MAX_SESSION_DURATION_MIN must be positive, got %d", c.MaxSessionDurationMin)
	}
	if c.InactivityTimeoutMin <= 0 {
		return fmt.Errorf("INACTIVITY_TIMEOUT_MIN must be positive, got %d", c.InactivityTimeoutMin)
	}
	if c.PlaybackQueueCapBytes <= 0 {
		return fmt.Errorf("PLAYBACK_QUEUE_CAP_BYTES must be positive, got %d", c.PlaybackQueueCapBytes)
	}
	if c.ThoughtEagerness < 0 || c.ThoughtEagerness > 1 {
		return fmt.Errorf("THOUGHT_EAGERNESS must be within [0,1], got %v", c.ThoughtEagerness)
	}
	if c.StreamWatchMaxFrameKB <= 0 {
		return fmt.Errorf("STREAM_WATCH_MAX_FRAME_KB must be positive, got %d", c.StreamWatchMaxFrameKB)
	}
	if c.StreamWatchFramesPerMin <= 0 {
		return fmt.Errorf("STREAM_WATCH_FRAMES_PER_MIN must be positive, got %d", c.StreamWatchFramesPerMin)
	}
	if c.CommentaryIntervalSec <= 0 {
		return fmt.Errorf("COMMENTARY_INTERVAL_SEC must be positive, got %d", c.CommentaryIntervalSec)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "BOT_DISPLAY_NAME", value: c.BotDisplayName},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "VOICE_MODE", value: c.DefaultVoiceMode},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
