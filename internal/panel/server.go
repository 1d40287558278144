// Package panel serves the operator JSON API: account lifecycle,
// share links and QR codes, live SSH connection state and endpoint
// settings.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yannaing86tt/ssh-panel/internal/account"
	"github.com/yannaing86tt/ssh-panel/internal/config"
	"github.com/yannaing86tt/ssh-panel/internal/manager"
	"github.com/yannaing86tt/ssh-panel/internal/metrics"
	"github.com/yannaing86tt/ssh-panel/internal/probe"
)

type Server struct {
	manager *manager.Manager
	prober  *probe.Prober
	cfg     *config.Config
	logger  *slog.Logger

	mu       sync.RWMutex
	verdicts map[string]probe.Verdict
	probedAt time.Time
}

func New(mgr *manager.Manager, prober *probe.Prober, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		manager:  mgr,
		prober:   prober,
		cfg:      cfg,
		logger:   logger,
		verdicts: make(map[string]probe.Verdict),
	}
}

// Run starts the HTTP server and the probe refresh loop, blocking
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("/api/connections", s.authMiddleware(s.handleConnections))
	mux.HandleFunc("/api/accounts", s.authMiddleware(s.handleAccounts))
	mux.HandleFunc("/api/accounts/", s.authMiddleware(s.handleAccountRoute))
	mux.HandleFunc("/api/settings/vmess", s.authMiddleware(s.handleVMessSettings))
	mux.HandleFunc("/api/settings/outline", s.authMiddleware(s.handleOutlineSettings))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("panel: listen %s: %w", s.cfg.Listen, err)
	}

	go s.refreshLoop(ctx)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.logger.Info("panel server started", "listen", s.cfg.Listen)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("panel: serve: %w", err)
	}
	return nil
}

// refreshLoop keeps the cached SSH connection snapshot and the account
// gauges current.
func (s *Server) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.Probe.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	s.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	accounts, err := s.manager.ListAll()
	if err != nil {
		s.logger.Warn("panel: listing accounts for probe", "err", err)
		return
	}

	now := time.Now()
	metrics.AccountsByStatus.Reset()
	var sshNames []string
	for _, a := range accounts {
		metrics.AccountsByStatus.WithLabelValues(string(a.Kind), a.StatusAt(now).String()).Inc()
		if a.Kind == account.KindSSH {
			sshNames = append(sshNames, a.Name)
		}
	}

	metrics.ProbeRunsTotal.Inc()
	verdicts, err := s.prober.Snapshot(sshNames)
	if err != nil {
		metrics.ProbeFailuresTotal.Inc()
		s.logger.Warn("panel: ssh probe failed", "err", err)
		return
	}

	online := 0
	for _, v := range verdicts {
		if v.Online {
			online++
		}
	}
	metrics.OnlineAccounts.Set(float64(online))

	s.mu.Lock()
	s.verdicts = verdicts
	s.probedAt = now
	s.mu.Unlock()
}

func (s *Server) snapshot() (map[string]probe.Verdict, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verdicts, s.probedAt
}
