package panel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/yannaing86tt/ssh-panel/internal/account"
	"github.com/yannaing86tt/ssh-panel/internal/config"
	"github.com/yannaing86tt/ssh-panel/internal/manager"
	"github.com/yannaing86tt/ssh-panel/internal/probe"
)

type accountInfo struct {
	ID             int64   `json:"id"`
	Kind           string  `json:"kind"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	CreatedAt      int64   `json:"created_at_unix"`
	ExpiresAt      int64   `json:"expires_at_unix"` // 0 means never
	DaysRemaining  int     `json:"days_remaining"`
	DataLimitGB    float64 `json:"data_limit_gb"`
	UsedDataGB     float64 `json:"used_data_gb"`
	MaxConnections int     `json:"max_connections"`
	Method         string  `json:"method,omitempty"`
	Port           int     `json:"port,omitempty"`
	IsActive       bool    `json:"is_active"`
	Notes          string  `json:"notes,omitempty"`
	Online         bool    `json:"online"`
	Devices        int     `json:"devices"`
}

func (s *Server) accountInfo(a account.Account, now time.Time, verdicts map[string]probe.Verdict) accountInfo {
	info := accountInfo{
		ID:             a.ID,
		Kind:           string(a.Kind),
		Name:           a.Name,
		Status:         a.StatusAt(now).String(),
		CreatedAt:      a.CreatedAt.Unix(),
		DaysRemaining:  a.DaysRemaining(now),
		DataLimitGB:    a.DataLimitGB,
		UsedDataGB:     a.UsedDataGB,
		MaxConnections: a.MaxConnections,
		Method:         a.Method,
		Port:           a.Port,
		IsActive:       a.IsActive,
		Notes:          a.Notes,
	}
	if !a.ExpiresAt.IsZero() {
		info.ExpiresAt = a.ExpiresAt.Unix()
	}
	if a.Kind == account.KindSSH {
		v := verdicts[a.Name]
		info.Online = v.Online
		info.Devices = v.Devices
	}
	return info
}

type kindSummary struct {
	Total         int `json:"total"`
	Active        int `json:"active"`
	Disabled      int `json:"disabled"`
	Expired       int `json:"expired"`
	QuotaExceeded int `json:"quota_exceeded"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	accounts, err := s.manager.ListAll()
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	summary := make(map[string]*kindSummary)
	for _, kind := range []account.Kind{account.KindSSH, account.KindVMess, account.KindShadowsocks} {
		summary[string(kind)] = &kindSummary{}
	}
	for _, a := range accounts {
		ks := summary[string(a.Kind)]
		if ks == nil {
			continue
		}
		ks.Total++
		switch a.StatusAt(now) {
		case account.StatusActive:
			ks.Active++
		case account.StatusDisabled:
			ks.Disabled++
		case account.StatusExpired:
			ks.Expired++
		case account.StatusQuotaExceeded:
			ks.QuotaExceeded++
		}
	}

	verdicts, probedAt := s.snapshot()
	online := 0
	for _, v := range verdicts {
		if v.Online {
			online++
		}
	}

	resp := map[string]any{
		"accounts":       summary,
		"ssh_online":     online,
		"probed_at_unix": probedAt.Unix(),
	}
	if host, err := probe.CollectHostStats(); err == nil {
		resp["host"] = host
	} else {
		s.logger.Warn("panel: collecting host stats", "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	verdicts, probedAt := s.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"connections":    verdicts,
		"probed_at_unix": probedAt.Unix(),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListAccounts(w, r)
	case http.MethodPost:
		s.handleCreateAccount(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	var accounts []account.Account
	var err error
	if kindParam := r.URL.Query().Get("kind"); kindParam != "" {
		kind := account.Kind(kindParam)
		if !kind.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown account kind"})
			return
		}
		accounts, err = s.manager.List(kind)
	} else {
		accounts, err = s.manager.ListAll()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	verdicts, _ := s.snapshot()
	infos := make([]accountInfo, 0, len(accounts))
	for _, a := range accounts {
		infos = append(infos, s.accountInfo(a, now, verdicts))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": infos})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind           string  `json:"kind"`
		Name           string  `json:"name"`
		Password       string  `json:"password"`
		Days           int     `json:"days"`
		DataLimitGB    float64 `json:"data_limit_gb"`
		MaxConnections int     `json:"max_connections"`
		Notes          string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	a, err := s.manager.Create(r.Context(), manager.CreateRequest{
		Kind:           account.Kind(req.Kind),
		Name:           req.Name,
		Password:       req.Password,
		Days:           req.Days,
		DataLimitGB:    req.DataLimitGB,
		MaxConnections: req.MaxConnections,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	verdicts, _ := s.snapshot()
	writeJSON(w, http.StatusCreated, s.accountInfo(a, time.Now(), verdicts))
}

// handleAccountRoute dispatches /api/accounts/<kind>/<name>[/<action>].
func (s *Server) handleAccountRoute(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/accounts/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind and name are required"})
		return
	}
	kind, name := account.Kind(parts[0]), parts[1]
	if !kind.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown account kind"})
		return
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetAccount(w, r, kind, name)
		case http.MethodDelete:
			s.handleDeleteAccount(w, r, kind, name)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		}
		return
	}

	action := parts[2]
	switch {
	case action == "toggle" && r.Method == http.MethodPost:
		s.handleToggle(w, r, kind, name)
	case action == "extend" && r.Method == http.MethodPost:
		s.handleExtend(w, r, kind, name)
	case action == "usage" && r.Method == http.MethodPut:
		s.handleUsage(w, r, kind, name)
	case action == "link" && r.Method == http.MethodGet:
		s.handleLink(w, r, kind, name)
	case action == "qr" && r.Method == http.MethodGet:
		s.handleQR(w, r, kind, name)
	case action == "config" && r.Method == http.MethodGet:
		s.handleClientConfig(w, r, kind, name)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown action"})
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request, kind account.Kind, name string) {
	a, err := s.manager.Get(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	verdicts, _ := s.snapshot()
	writeJSON(w, http.StatusOK, s.accountInfo(a, time.Now(), verdicts))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, kind account.Kind, name string) {
	if err := s.manager.Delete(r.Context(), kind, name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, kind account.Kind, name string) {
	res, err := s.manager.Toggle(r.Context(), kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	verdicts, _ := s.snapshot()
	resp := map[string]any{"account": s.accountInfo(res.Account, time.Now(), verdicts)}
	if res.Warning != "" {
		resp["warning"] = res.Warning
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request, kind account.Kind, name string) {
	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a, err := s.manager.Extend(r.Context(), kind, name, req.Days)
	if err != nil {
		writeError(w, err)
		return
	}
	verdicts, _ := s.snapshot()
	writeJSON(w, http.StatusOK, s.accountInfo(a, time.Now(), verdicts))
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, kind account.Kind, name string) {
	var req struct {
		UsedDataGB float64 `json:"used_data_gb"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.manager.SetUsedData(kind, name, req.UsedDataGB); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLink(w http.ResponseWriter, _ *http.Request, kind account.Kind, name string) {
	uri, err := s.manager.Link(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": uri})
}

func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request, kind account.Kind, name string) {
	uri, err := s.manager.Link(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, 512)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate QR code"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *Server) handleClientConfig(w http.ResponseWriter, _ *http.Request, kind account.Kind, name string) {
	text, err := s.manager.ClientConfig(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"config": text})
}

type vmessSettings struct {
	Address    string `json:"address"`
	HostHeader string `json:"host_header"`
	Port       int    `json:"port"`
	Path       string `json:"path"`
	TLS        string `json:"tls"`
}

func (s *Server) handleVMessSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ep, err := s.manager.VMessEndpoint()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, vmessSettings{
			Address:    ep.Address,
			HostHeader: ep.HostHeader,
			Port:       ep.Port,
			Path:       ep.Path,
			TLS:        ep.TLS,
		})
	case http.MethodPut:
		var req vmessSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		err := s.manager.UpdateVMessEndpoint(config.VMessConfig{
			Address:    req.Address,
			HostHeader: req.HostHeader,
			Port:       req.Port,
			Path:       req.Path,
			TLS:        req.TLS,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

type outlineSettings struct {
	Address string `json:"address"`
	Method  string `json:"method"`
}

func (s *Server) handleOutlineSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ep, err := s.manager.OutlineEndpoint()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outlineSettings{Address: ep.Address, Method: ep.Method})
	case http.MethodPut:
		var req outlineSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		err := s.manager.UpdateOutlineEndpoint(config.OutlineConfig{
			Address: req.Address,
			Method:  req.Method,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// writeError maps domain errors to HTTP statuses. Anything unmapped is
// treated as a rejected request rather than a server fault: internal
// failures all wrap one of the mapped sentinels.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, account.ErrDuplicateAccount):
		status = http.StatusConflict
	case errors.Is(err, account.ErrProvisionFailed),
		errors.Is(err, account.ErrProvisionVerificationFailed):
		status = http.StatusBadGateway
	case errors.Is(err, account.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
