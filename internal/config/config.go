package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string `yaml:"log_level"`
	Listen   string `yaml:"listen"`
	DBPath   string `yaml:"db_path"`

	// APITokenHash is the bcrypt hash of the operator bearer token,
	// produced by the hashpass subcommand. Empty disables auth (local
	// development only).
	APITokenHash string `yaml:"api_token_hash"`

	SSH           SSHConfig           `yaml:"ssh"`
	VMess         VMessConfig         `yaml:"vmess"`
	Outline       OutlineConfig       `yaml:"outline"`
	Provisioner   ProvisionerConfig   `yaml:"provisioner"`
	Probe         ProbeConfig         `yaml:"probe"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type SSHConfig struct {
	Port                  int    `yaml:"port"`
	PublicAddress         string `yaml:"public_address"`
	DefaultDays           int    `yaml:"default_days"`
	DefaultMaxConnections int    `yaml:"default_max_connections"`
}

type VMessConfig struct {
	Address     string `yaml:"address"`
	HostHeader  string `yaml:"host_header"` // WS Host/SNI when fronted; empty means same as address
	Port        int    `yaml:"port"`
	Path        string `yaml:"path"`
	TLS         string `yaml:"tls"` // "tls" or "none"
	DefaultDays int    `yaml:"default_days"`
}

type OutlineConfig struct {
	Address  string `yaml:"address"`
	Method   string `yaml:"method"`
	BasePort int    `yaml:"base_port"`
}

type ProvisionerConfig struct {
	ScriptDir      string `yaml:"script_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ProbeConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

type ObservabilityConfig struct {
	Listen  string `yaml:"listen"`
	Metrics bool   `yaml:"metrics"`
	Pprof   bool   `yaml:"pprof"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(filepath.Dir(path), "panel.sqlite")
	}

	if cfg.SSH.Port == 0 {
		cfg.SSH.Port = 22
	}
	if cfg.SSH.DefaultDays == 0 {
		cfg.SSH.DefaultDays = 30
	}
	if cfg.SSH.DefaultMaxConnections == 0 {
		cfg.SSH.DefaultMaxConnections = 2
	}

	if cfg.VMess.Port == 0 {
		cfg.VMess.Port = 443
	}
	if cfg.VMess.Path == "" {
		cfg.VMess.Path = "/ws"
	}
	if cfg.VMess.TLS == "" {
		cfg.VMess.TLS = "tls"
	}
	if cfg.VMess.TLS != "tls" && cfg.VMess.TLS != "none" {
		return nil, fmt.Errorf("vmess: tls must be \"tls\" or \"none\", got %q", cfg.VMess.TLS)
	}
	if cfg.VMess.DefaultDays == 0 {
		cfg.VMess.DefaultDays = 30
	}

	if cfg.Outline.Method == "" {
		cfg.Outline.Method = "chacha20-ietf-poly1305"
	}
	if cfg.Outline.BasePort == 0 {
		cfg.Outline.BasePort = 8388
	}

	if cfg.Provisioner.ScriptDir == "" {
		cfg.Provisioner.ScriptDir = "/opt/ssh-panel/scripts"
	}
	if cfg.Provisioner.TimeoutSeconds == 0 {
		cfg.Provisioner.TimeoutSeconds = 30
	}

	if cfg.Probe.IntervalSeconds == 0 {
		cfg.Probe.IntervalSeconds = 10
	}

	return &cfg, nil
}

func (c *Config) ParseLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServerPublicIP returns the address clients should connect to.
// It returns ssh.public_address if configured, otherwise queries
// ifconfig.me.
func (c *Config) ServerPublicIP() string {
	if c.SSH.PublicAddress != "" {
		return c.SSH.PublicAddress
	}
	if ip, err := detectPublicIP(); err == nil {
		return ip
	}
	return ""
}

func detectPublicIP() (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("https://ifconfig.me/ip")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if _, err := netip.ParseAddr(ip); err != nil {
		return "", fmt.Errorf("invalid IP from ifconfig.me: %q", ip)
	}
	return ip, nil
}
