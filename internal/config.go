package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,required=true"`
	HealthPort int    `env:"HEALTH_PORT,required=true"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	WriteWait            time.Duration `env:"WRITE_WAIT,default=10s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`

	HistoryLimit      int           `env:"HISTORY_LIMIT,default=50"`
	EditWindow        time.Duration `env:"EDIT_WINDOW,default=15m"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	ModerationEnabled bool          `env:"MODERATION_ENABLED,default=false"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=1s"`
	StatsInterval     time.Duration `env:"STATS_INTERVAL,default=1m"`
	ActivityInterval  time.Duration `env:"ACTIVITY_INTERVAL,default=1m"`
}

// Origins splits ALLOWED_ORIGINS on commas. An empty list accepts every origin.
func (c Config) Origins() []string {
	return lo.Compact(lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) HealthAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HealthPort)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
