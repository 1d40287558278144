package commands

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yannaing86tt/ssh-panel/internal/config"
	"github.com/yannaing86tt/ssh-panel/internal/manager"
	"github.com/yannaing86tt/ssh-panel/internal/panel"
	"github.com/yannaing86tt/ssh-panel/internal/probe"
	"github.com/yannaing86tt/ssh-panel/internal/provision"
	"github.com/yannaing86tt/ssh-panel/internal/store"
)

func RunPanel(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "configs/panel.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.ParseLogLevel()}))
	logger.Info("starting ssh-panel", "listen", cfg.Listen, "db", cfg.DBPath)

	if obs := cfg.Observability; obs.Listen != "" {
		mux := http.NewServeMux()
		if obs.Pprof {
			// Re-register pprof handlers on our mux (net/http/pprof init registers on DefaultServeMux).
			mux.HandleFunc("/debug/pprof/", http.DefaultServeMux.ServeHTTP)
		}
		if obs.Metrics {
			mux.Handle("/metrics", promhttp.Handler())
		}
		go func() {
			logger.Info("starting observability server", "addr", obs.Listen, "pprof", obs.Pprof, "metrics", obs.Metrics)
			if err := http.ListenAndServe(obs.Listen, mux); err != nil {
				logger.Error("observability server failed", "err", err)
			}
		}()
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	prov := provision.NewScripts(cfg.Provisioner.ScriptDir,
		time.Duration(cfg.Provisioner.TimeoutSeconds)*time.Second, logger)
	mgr := manager.New(st, prov, cfg, logger)
	prober := probe.New(cfg.SSH.Port, logger)
	srv := panel.New(mgr, prober, cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		logger.Error("panel error", "err", err)
		os.Exit(1)
	}
}
