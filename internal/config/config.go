// Package config loads service configuration from the environment,
// honoring a local .env file when present.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// KafkaConfig holds broker settings for eventing. When disabled the
// notifier runs in log-only mode and the stop-event consumer is absent.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicUpdated string
	TopicStops   string
	GroupID      string
}

// Config is the full service configuration.
type Config struct {
	Env               string
	LogLevel          string
	LogFormat         string
	ObservabilityAddr string

	// DatabasePath is the SQLite file backing transcript persistence.
	DatabasePath string

	Kafka KafkaConfig

	// ASRProvider selects the transcription backend: openai, google, mock.
	ASRProvider  string
	OpenAIAPIKey string
	WhisperModel string
	GPTModel     string
	PyannoteURL  string

	EnableDiarization bool
	EnableFormatting  bool
	EnableQualityGate bool

	Language         string
	DefaultSpeakerID string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over file values.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:               envOrDefault("ENV", "prod"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("LOG_FORMAT", "json"),
		ObservabilityAddr: envOrDefault("OBSERVABILITY_ADDR", ":9090"),

		DatabasePath: envOrDefault("DATABASE_PATH", "transcripts.db"),

		Kafka: KafkaConfig{
			Enabled:      envBool("KAFKA_ENABLED", false),
			Brokers:      envList("KAFKA_BROKERS"),
			TopicUpdated: envOrDefault("KAFKA_TOPIC_UPDATED", "conversation.transcripts.updated"),
			TopicStops:   envOrDefault("KAFKA_TOPIC_STOPS", "conversation.recording.stopped"),
			GroupID:      envOrDefault("KAFKA_GROUP_ID", "transcript-reconciler"),
		},

		ASRProvider:  strings.ToLower(envOrDefault("ASR_PROVIDER", "openai")),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		WhisperModel: envOrDefault("WHISPER_MODEL", "whisper-1"),
		GPTModel:     envOrDefault("GPT_MODEL", "gpt-4o-mini"),
		PyannoteURL:  envOrDefault("PYANNOTE_URL", "http://localhost:8388"),

		EnableDiarization: envBool("ENABLE_DIARIZATION", true),
		EnableFormatting:  envBool("ENABLE_GPT_FORMATTING", true),
		EnableQualityGate: envBool("ENABLE_QUALITY_GATE", false),

		Language:         envOrDefault("LANGUAGE", "en"),
		DefaultSpeakerID: envOrDefault("DEFAULT_SPEAKER_ID", "SPEAKER_00"),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
