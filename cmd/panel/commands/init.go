package commands

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

func Init(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "configs/panel.yaml", "path to config file")
	address := fs.String("address", "", "public address clients connect to")
	fs.Parse(args)

	if *address == "" {
		fmt.Fprintln(os.Stderr, "error: -address is required (public IP or domain)")
		fs.Usage()
		os.Exit(1)
	}

	content := fmt.Sprintf(`log_level: info
listen: "127.0.0.1:8080"

# Generate with: panel hashpass -token <token>
api_token_hash: ""

ssh:
  port: 22
  public_address: "%[1]s"
  default_days: 30
  default_max_connections: 2

vmess:
  address: "%[1]s"
  port: 443
  path: "/ws"
  tls: "tls"
  default_days: 30

outline:
  address: "%[1]s"
  method: "chacha20-ietf-poly1305"
  base_port: 8388

provisioner:
  script_dir: "/opt/ssh-panel/scripts"
  timeout_seconds: 30

probe:
  interval_seconds: 10

observability:
  listen: "127.0.0.1:9090"
  metrics: true
  pprof: false
`, *address)

	if err := os.MkdirAll(filepath.Dir(*configPath), 0o755); err != nil {
		logger.Error("failed to create config directory", "err", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*configPath, []byte(content), 0o600); err != nil {
		logger.Error("failed to write config", "err", err)
		os.Exit(1)
	}

	fmt.Println("=== Config initialized ===")
	fmt.Printf("Config:  %s\n", *configPath)
	fmt.Printf("Address: %s\n", *address)
	fmt.Println()
	fmt.Println("Set api_token_hash before exposing the panel.")
}
