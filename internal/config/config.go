package config

import "time"

// Config holds settings for the oocsi command-line tool.
type Config struct {
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	Handle           string        `mapstructure:"handle" yaml:"handle"`
	WebSocketURL     string        `mapstructure:"websocket_url" yaml:"websocket_url"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Host:             "localhost",
		Port:             4444,
		Handle:           "oocsi-cli_###",
		LogLevel:         "info",
		ConnectTimeout:   10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
	}
}
