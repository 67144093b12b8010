package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/gep/cidutil"
	"xdao.co/gep/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "gep.yaml", `
hub:
  url: wss://hub.example/a2a/ws
  transport: websocket
  timeout: 5s
node:
  id: node_abc
  capabilities:
    bounty_claiming: false
archive:
  write_policy: all
  backends:
    - name: local
      type: localfs
      dir: /var/lib/gep
    - name: shared
      type: grpc
      target: archive:7443
      timeout: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://hub.example/a2a/ws", cfg.Hub.URL)
	assert.Equal(t, TransportWebSocket, cfg.Hub.Transport)
	assert.Equal(t, 5*time.Second, cfg.Hub.Timeout)
	assert.True(t, cfg.Hub.Breaker.Enabled, "untouched sections keep defaults")
	assert.Equal(t, "node_abc", cfg.Node.ID)
	assert.True(t, cfg.Node.Capabilities.GenePublishing)
	assert.False(t, cfg.Node.Capabilities.BountyClaiming)
	assert.Equal(t, 3, cfg.Node.FailureThreshold)
	require.Len(t, cfg.Archive.Backends, 2)
	assert.Equal(t, 2*time.Second, cfg.Archive.Backends[1].Timeout)
}

func TestLoad_EnvWinsOverFileAndDotenv(t *testing.T) {
	path := writeFile(t, "gep.yaml", "node:\n  id: from_file\n")
	dotenv := writeFile(t, ".env", "GEP_NODE_ID=from_dotenv\nGEP_REFERRER=ref_dotenv\n")
	t.Setenv(EnvNodeID, "from_env")
	t.Setenv(EnvReferrer, "")

	cfg, err := Load(path, dotenv, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Node.ID)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvHubURL:    "http://localhost:8080",
		EnvTransport: "HTTP",
		EnvReferrer:  "node_ref",
		EnvLogLevel:  "DEBUG",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "http://localhost:8080", cfg.Hub.URL)
	assert.Equal(t, TransportHTTP, cfg.Hub.Transport)
	assert.Equal(t, "node_ref", cfg.Node.Referrer)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad url":            func(c *Config) { c.Hub.URL = "::" },
		"scheme mismatch":    func(c *Config) { c.Hub.Transport = TransportWebSocket },
		"unknown transport":  func(c *Config) { c.Hub.Transport = "carrier-pigeon" },
		"zero timeout":       func(c *Config) { c.Hub.Timeout = 0 },
		"zero threshold":     func(c *Config) { c.Node.FailureThreshold = 0 },
		"reconnect range":    func(c *Config) { c.Node.ReconnectMax = time.Millisecond },
		"log level":          func(c *Config) { c.Log.Level = "loud" },
		"log format":         func(c *Config) { c.Log.Format = "xml" },
		"no backends":        func(c *Config) { c.Archive.Backends = nil },
		"write policy":       func(c *Config) { c.Archive.WritePolicy = "some" },
		"localfs needs dir":  func(c *Config) { c.Archive.Backends = []BackendConfig{{Name: "l", Type: BackendLocalFS}} },
		"grpc needs target":  func(c *Config) { c.Archive.Backends = []BackendConfig{{Name: "g", Type: BackendGRPC}} },
		"unknown backend":    func(c *Config) { c.Archive.Backends = []BackendConfig{{Name: "x", Type: "s3"}} },
		"duplicate backends": func(c *Config) { c.Archive.Backends = []BackendConfig{{Type: BackendMemory}, {Type: BackendMemory}} },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestArchiveOpen(t *testing.T) {
	dir := t.TempDir()
	ac := ArchiveConfig{
		WritePolicy: WriteFirst,
		Backends: []BackendConfig{
			{Name: "mem", Type: BackendMemory},
			{Name: "disk", Type: BackendLocalFS, Dir: dir},
		},
	}

	s, closeFn, err := ac.Open("disk")
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	m, ok := s.(storage.Multi)
	require.True(t, ok)
	assert.Equal(t, "disk", m.Stores[0].Name)
	assert.False(t, m.WriteAll)

	id, err := s.Put([]byte(`{"name":"x"}`))
	require.NoError(t, err)
	digest, err := cidutil.SHA256Hex(id)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, digest[:2], digest+".json"))
	assert.NoError(t, err, "preferred backend receives writes")

	_, _, err = ac.Open("nope")
	assert.Error(t, err)
}

func TestArchiveOpen_Single(t *testing.T) {
	s, closeFn, err := Default().Archive.Open("")
	require.NoError(t, err)
	require.NoError(t, closeFn())
	_, isMulti := s.(storage.Multi)
	assert.False(t, isMulti)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Info("hidden")
	assert.Empty(t, buf.String())
	LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf).Debug("shown", "k", "v")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())
	assert.Contains(t, buf.String(), `"k":"v"`)
}
