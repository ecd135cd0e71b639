package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the practice gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Credential endpoint issuing short-lived model provider keys.
	// The gateway never holds a long-lived provider secret itself.
	AuthEndpoint string `envconfig:"AUTH_ENDPOINT" required:"true"`

	// Model provider streaming endpoint and session parameters
	ProviderURL string `envconfig:"PROVIDER_URL" default:"wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"`
	ModelID     string `envconfig:"MODEL_ID" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	VoiceName   string `envconfig:"VOICE_NAME" default:"Puck"`

	// Audio configuration. Capture is what the client microphone delivers,
	// render is what the model speaks at.
	CaptureSampleRate int `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"`
	RenderSampleRate  int `envconfig:"RENDER_SAMPLE_RATE" default:"24000"`
	CaptureBlockSize  int `envconfig:"CAPTURE_BLOCK_SIZE" default:"4096"` // samples per block in buffered mode
	SampleBufferSize  int `envconfig:"SAMPLE_BUFFER_SIZE" default:"16384"`

	// Session timing
	KeepaliveIntervalSec int `envconfig:"KEEPALIVE_INTERVAL_SEC" default:"25"` // idle-timeout prevention cadence
	KickoffDelayMs       int `envconfig:"KICKOFF_DELAY_MS" default:"100"`      // delay before the assistant-speaks-first nudge
	TickIntervalMs       int `envconfig:"TICK_INTERVAL_MS" default:"50"`       // animation/volume sampling cadence

	// Resilience configuration for the credential endpoint
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables, first loading a
// .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without consulting a .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.AuthEndpoint == "" {
		return nil, fmt.Errorf("AUTH_ENDPOINT is required")
	}
	if cfg.CaptureSampleRate <= 0 || cfg.RenderSampleRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive")
	}
	if cfg.CaptureBlockSize <= 0 {
		return nil, fmt.Errorf("CAPTURE_BLOCK_SIZE must be positive")
	}

	return &cfg, nil
}
