package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	NumberOfWorkers      int           `env:"NUMBER_OF_WORKERS,default=4"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ProbeInterval        time.Duration `env:"PROBE_INTERVAL,default=30s"`
	RingTimeout          time.Duration `env:"RING_TIMEOUT,default=60s"`
	HandshakeTimeout     time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=65536"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=4000"`
	LimitMessages    *int   `env:"LIMIT_MESSAGES"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS"`
}

// Load reads an optional .env file then the environment. Variables already
// set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, fmt.Errorf("loading %v: %w", files, err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.NumberOfWorkers < 1 {
		return Config{}, fmt.Errorf("NUMBER_OF_WORKERS must be positive, got %d", config.NumberOfWorkers)
	}
	return config, nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS. Empty means same-host pages only.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
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
