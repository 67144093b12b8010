// Package config loads node configuration from a YAML file, a .env file
// and the process environment, in that order of increasing precedence.
//
// Example:
//
//	hub:
//	  url: https://evomap.ai
//	  transport: http        # or websocket
//	  timeout: 30s
//	  breaker:
//	    enabled: true
//	    failures: 5
//	    cooldown: 30s
//	node:
//	  id: node_abc           # empty: the exchange assigns one
//	  referrer: ""
//	  capabilities:
//	    gene_publishing: true
//	    capsule_publishing: true
//	    bounty_claiming: true
//	  failure_threshold: 3
//	  reconnect: true
//	archive:
//	  write_policy: first    # or all
//	  backends:
//	    - name: local
//	      type: localfs
//	      dir: ./archive
//	    - name: shared
//	      type: grpc
//	      target: archive.internal:7443
//	log:
//	  level: info
//	  format: text
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvHubURL    = "GEP_HUB_URL"
	EnvNodeID    = "GEP_NODE_ID"
	EnvReferrer  = "GEP_REFERRER"
	EnvTransport = "GEP_TRANSPORT"
	EnvLogLevel  = "GEP_LOG_LEVEL"
)

const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

type Config struct {
	Hub     HubConfig     `yaml:"hub"`
	Node    NodeConfig    `yaml:"node"`
	Archive ArchiveConfig `yaml:"archive"`
	Log     LogConfig     `yaml:"log"`
}

type HubConfig struct {
	URL       string        `yaml:"url"`
	Transport string        `yaml:"transport"`
	Timeout   time.Duration `yaml:"timeout"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Failures uint32        `yaml:"failures"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type NodeConfig struct {
	ID               string             `yaml:"id"`
	Referrer         string             `yaml:"referrer"`
	Capabilities     CapabilitiesConfig `yaml:"capabilities"`
	FailureThreshold int                `yaml:"failure_threshold"`
	Reconnect        bool               `yaml:"reconnect"`
	ReconnectMin     time.Duration      `yaml:"reconnect_min"`
	ReconnectMax     time.Duration      `yaml:"reconnect_max"`
}

type CapabilitiesConfig struct {
	GenePublishing    bool `yaml:"gene_publishing"`
	CapsulePublishing bool `yaml:"capsule_publishing"`
	BountyClaiming    bool `yaml:"bounty_claiming"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Hub: HubConfig{
			URL:       "https://evomap.ai",
			Transport: TransportHTTP,
			Timeout:   30 * time.Second,
			Breaker:   BreakerConfig{Enabled: true, Failures: 5, Cooldown: 30 * time.Second},
		},
		Node: NodeConfig{
			Capabilities:     CapabilitiesConfig{GenePublishing: true, CapsulePublishing: true, BountyClaiming: true},
			FailureThreshold: 3,
			Reconnect:        true,
			ReconnectMin:     time.Second,
			ReconnectMax:     5 * time.Minute,
		},
		Archive: ArchiveConfig{
			WritePolicy: WriteFirst,
			Backends:    []BackendConfig{{Name: "memory", Type: BackendMemory}},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if path
// is non-empty), then the environment. dotenv files are loaded into the
// environment first; missing dotenv files are ignored. Variables already
// set in the process win over dotenv values.
func Load(path string, dotenv ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", f, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides settings from the GEP_* variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvHubURL); v != "" {
		c.Hub.URL = v
	}
	if v := getenv(EnvNodeID); v != "" {
		c.Node.ID = v
	}
	if v := getenv(EnvReferrer); v != "" {
		c.Node.Referrer = v
	}
	if v := getenv(EnvTransport); v != "" {
		c.Hub.Transport = strings.ToLower(v)
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Hub.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: invalid hub url %q", c.Hub.URL)
	}
	switch c.Hub.Transport {
	case TransportHTTP:
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("config: hub url %q must be http or https for transport %q", c.Hub.URL, c.Hub.Transport)
		}
	case TransportWebSocket:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("config: hub url %q must be ws or wss for transport %q", c.Hub.URL, c.Hub.Transport)
		}
	default:
		return fmt.Errorf("config: invalid hub transport %q", c.Hub.Transport)
	}
	if c.Hub.Timeout <= 0 {
		return errors.New("config: hub timeout must be positive")
	}
	if c.Node.FailureThreshold <= 0 {
		return errors.New("config: node failure_threshold must be positive")
	}
	if c.Node.ReconnectMax < c.Node.ReconnectMin {
		return errors.New("config: node reconnect_max is below reconnect_min")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Log.Format)
	}
	return c.Archive.Validate()
}
