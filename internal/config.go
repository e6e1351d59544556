package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// DirectoryConfig drives cmd/directory.
type DirectoryConfig struct {
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	LimitAuditRecords *int          `env:"LIMIT_AUDIT_RECORDS"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
}

// PanelConfig drives cmd/panel. Flags may override some of it.
type PanelConfig struct {
	LogLevel                  string        `env:"LOG_LEVEL,default=INFO"`
	DirectoryURL              string        `env:"DIRECTORY_URL,default=http://localhost:8080"`
	SignalingURL              string        `env:"SIGNALING_URL,default=http://localhost:8080"`
	StunURLs                  string        `env:"STUN_URLS,default=stun:stun.l.google.com:19302"`
	MaxCohosts                int           `env:"MAX_COHOSTS,default=3"`
	MaxSpeakers               int           `env:"MAX_SPEAKERS,default=8"`
	MaxChatLength             int           `env:"MAX_CHAT_LENGTH,default=500"`
	SpeakingThreshold         int           `env:"SPEAKING_THRESHOLD,default=20"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	BufferSize                int           `env:"BUFFER_SIZE,default=256"`
	SinkTimeout               time.Duration `env:"SINK_TIMEOUT,default=2s"`
	MetricInterval            time.Duration `env:"METRIC_INTERVAL,default=5s"`
	LowCapacityThreshold      int           `env:"LOW_CAPACITY_THRESHOLD,default=16"`
	MicrophoneDevice          string        `env:"MICROPHONE_DEVICE,default=default"`
}

// Load reads a .env file when there is one, then decodes the environment into cfg.
func Load(cfg any, files ...string) error {
	_ = godotenv.Load(files...)
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
