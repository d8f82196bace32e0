package configs

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Connection   ConnectionConfig   `koanf:"connection"`
	Reconnect    ReconnectConfig    `koanf:"reconnect"`
	Rest         RestConfig         `koanf:"rest"`
	MessageStore MessageStoreConfig `koanf:"message_store"`
	Outbound     OutboundConfig     `koanf:"outbound"`
	Reducer      ReducerConfig      `koanf:"reducer"`
	Logger       LoggerConfig       `koanf:"logger"`
	Tracing      TracingConfig      `koanf:"tracing"`
	StatusServer StatusServerConfig `koanf:"status_server"`
}

type ConnectionConfig struct {
	URL              string        `koanf:"url"`
	Token            string        `koanf:"token"`
	SelfID           string        `koanf:"self_id"`
	Role             string        `koanf:"role"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	PingInterval     time.Duration `koanf:"ping_interval"`
	AckTimeout       time.Duration `koanf:"ack_timeout"`
}

// ReconnectConfig drives the exponential backoff between dial attempts.
// Jitter is the randomization factor in [0, 1].
type ReconnectConfig struct {
	MinDelay   time.Duration `koanf:"min_delay"`
	MaxDelay   time.Duration `koanf:"max_delay"`
	Multiplier float64       `koanf:"multiplier"`
	Jitter     float64       `koanf:"jitter"`
}

type RestConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type MessageStoreConfig struct {
	Capacity uint `koanf:"capacity"`
}

type OutboundConfig struct {
	MessagesPerWindow int           `koanf:"messages_per_window"`
	Window            time.Duration `koanf:"window"`
	TypingInterval    time.Duration `koanf:"typing_interval"`
}

type ReducerConfig struct {
	RejectStale bool `koanf:"reject_stale"`
}

type LoggerConfig struct {
	FilePath string `koanf:"file_path"`
	Encoding string `koanf:"encoding"`
	Level    string `koanf:"level"`
}

type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Environment string  `koanf:"environment"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

type StatusServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    uint16 `koanf:"port"`
}

// envOverrides lists every variable that may override the file. Zero values
// mean "not set" and leave the file or default in place. Pointer fields are
// for variables where zero is a meaningful setting.
type envOverrides struct {
	ConnectionURL   string        `env:"BOOKINGSYNC_WS_URL"`
	ConnectionToken string        `env:"BOOKINGSYNC_TOKEN"`
	SelfID          string        `env:"BOOKINGSYNC_SELF_ID"`
	AckTimeout      time.Duration `env:"BOOKINGSYNC_ACK_TIMEOUT"`
	MinDelay        time.Duration `env:"RECONNECT_MIN_DELAY"`
	MaxDelay        time.Duration `env:"RECONNECT_MAX_DELAY"`
	Jitter          *float64      `env:"RECONNECT_JITTER"`
	RestBaseURL     string        `env:"BOOKINGSYNC_REST_URL"`
	RestTimeout     time.Duration `env:"BOOKINGSYNC_REST_TIMEOUT"`
	StoreCapacity   uint          `env:"MESSAGE_STORE_CAPACITY"`
	LoggerLevel     string        `env:"LOGGER_LEVEL"`
	LoggerEncoding  string        `env:"LOGGER_ENCODING"`
	LoggerFilePath  string        `env:"LOGGER_FILE_PATH"`
	TracingEndpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Environment     string        `env:"ENVIRONMENT"`
	StatusPort      uint16        `env:"STATUS_SERVER_PORT"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load from YAML file if it exists
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	if err := applyEnvOverrides(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Connection.Role != "customer" && c.Connection.Role != "provider" {
		return fmt.Errorf("connection.role must be customer or provider")
	}
	if c.Reconnect.MinDelay <= 0 {
		return fmt.Errorf("reconnect.min_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.MinDelay {
		return fmt.Errorf("reconnect.max_delay must not be below reconnect.min_delay")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		return fmt.Errorf("reconnect.jitter must be within [0, 1]")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

func applyDefaults(k *koanf.Koanf) {
	// Connection defaults
	setDefault(k, "connection.url", "ws://localhost:8080/ws")
	setDefault(k, "connection.handshake_timeout", 10*time.Second)
	setDefault(k, "connection.ping_interval", 25*time.Second)
	setDefault(k, "connection.ack_timeout", 10*time.Second)
	setDefault(k, "connection.role", "provider")

	// Reconnect defaults
	setDefault(k, "reconnect.min_delay", 500*time.Millisecond)
	setDefault(k, "reconnect.max_delay", 30*time.Second)
	setDefault(k, "reconnect.multiplier", 2.0)
	setDefault(k, "reconnect.jitter", 0.5)

	// REST defaults
	setDefault(k, "rest.base_url", "http://localhost:8080/api")
	setDefault(k, "rest.timeout", 15*time.Second)

	// Store and outbound defaults
	setDefault(k, "message_store.capacity", 500)
	setDefault(k, "outbound.messages_per_window", 20)
	setDefault(k, "outbound.window", 10*time.Second)
	setDefault(k, "outbound.typing_interval", 2*time.Second)

	setDefault(k, "logger.encoding", "json")
	setDefault(k, "logger.level", "info")

	setDefault(k, "tracing.endpoint", "http://localhost:4318/v1/traces")
	setDefault(k, "tracing.service_name", "bookingsync")
	setDefault(k, "tracing.environment", "development")
	setDefault(k, "tracing.sample_ratio", 1.0)

	setDefault(k, "status_server.host", "127.0.0.1")
	setDefault(k, "status_server.port", 8089)
}

func applyEnvOverrides(k *koanf.Koanf) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse env overrides: %w", err)
	}

	setIf(k, "connection.url", o.ConnectionURL, o.ConnectionURL != "")
	setIf(k, "connection.token", o.ConnectionToken, o.ConnectionToken != "")
	setIf(k, "connection.self_id", o.SelfID, o.SelfID != "")
	setIf(k, "connection.ack_timeout", o.AckTimeout, o.AckTimeout > 0)

	setIf(k, "reconnect.min_delay", o.MinDelay, o.MinDelay > 0)
	setIf(k, "reconnect.max_delay", o.MaxDelay, o.MaxDelay > 0)
	if o.Jitter != nil {
		k.Set("reconnect.jitter", *o.Jitter)
	}

	setIf(k, "rest.base_url", o.RestBaseURL, o.RestBaseURL != "")
	setIf(k, "rest.timeout", o.RestTimeout, o.RestTimeout > 0)

	setIf(k, "message_store.capacity", o.StoreCapacity, o.StoreCapacity > 0)

	setIf(k, "logger.level", o.LoggerLevel, o.LoggerLevel != "")
	setIf(k, "logger.encoding", o.LoggerEncoding, o.LoggerEncoding != "")
	setIf(k, "logger.file_path", o.LoggerFilePath, o.LoggerFilePath != "")

	setIf(k, "tracing.endpoint", o.TracingEndpoint, o.TracingEndpoint != "")
	setIf(k, "tracing.environment", o.Environment, o.Environment != "")

	setIf(k, "status_server.port", o.StatusPort, o.StatusPort > 0)
	return nil
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func setIf(k *koanf.Koanf, key string, value any, ok bool) {
	if ok {
		k.Set(key, value)
	}
}
