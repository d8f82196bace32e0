package logging

import (
	"github.com/caarlos0/env/v11"
)

type Logger interface {
	Debug(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Debugf(template string, args ...any)

	Info(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Infof(template string, args ...any)

	Warn(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Warnf(template string, args ...any)

	Error(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Errorf(template string, args ...any)

	Fatal(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Fatalf(template string, args ...any)

	Sync() error
}

type LoggerConfig struct {
	FilePath string `env:"LOGGER_FILE_PATH"`
	Encoding string `env:"LOGGER_ENCODING" envDefault:"json"`
	Level    string `env:"LOGGER_LEVEL" envDefault:"info"`
}

// NewDefaultConfig reads the logger settings from the environment. Malformed
// values fall back to the defaults.
func NewDefaultConfig() *LoggerConfig {
	cfg, err := env.ParseAs[LoggerConfig]()
	if err != nil {
		return &LoggerConfig{Encoding: "json", Level: "info"}
	}
	return &cfg
}

func NewLogger(cfg *LoggerConfig) Logger {
	return newZapLogger(cfg)
}
