package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	adminTokenLength = 24
)

type Config struct {
	JoinToken string `env:"WALKIE_TALKIE_JOIN_TOKEN,required=true"`
	Host      string `env:"WALKIE_TALKIE_HOST,default=127.0.0.1"`
	Port      int    `env:"PORT,default=9559"`

	// flags only
	WSListenAddr string
	LogLevel     string
	PollTimeout  time.Duration
}

// loadConfig reads an optional .env file, the environment and then command line flags.
func loadConfig(args []string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.JoinToken == "" {
		return nil, errors.New("config error: WALKIE_TALKIE_JOIN_TOKEN must not be empty")
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "api listen host")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "api listen port")
	fs.StringVarP(&cfg.WSListenAddr, "ws-listen-addr", "w", "", "websocket event stream listen address (disabled if empty)")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", "info", "log level")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", time.Hour, "how long a poll is held open")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) ListenAddr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// generateAdminToken returns a fresh admin secret. It lives only as long as the process.
func generateAdminToken() (string, error) {
	b := make([]byte, adminTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate admin token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
