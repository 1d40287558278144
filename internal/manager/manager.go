// Package manager implements the account lifecycle: creating,
// toggling, extending and deleting accounts across the store and the
// host-side provisioner, and issuing client links and configs.
package manager

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yannaing86tt/ssh-panel/internal/account"
	"github.com/yannaing86tt/ssh-panel/internal/config"
	"github.com/yannaing86tt/ssh-panel/internal/link"
	"github.com/yannaing86tt/ssh-panel/internal/metrics"
	"github.com/yannaing86tt/ssh-panel/internal/provision"
	"github.com/yannaing86tt/ssh-panel/internal/store"
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

type Manager struct {
	store  *store.Store
	prov   provision.Provisioner
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st *store.Store, prov provision.Provisioner, cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		prov:   prov,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockAccount serialises lifecycle operations per (kind, name). The
// store's UNIQUE constraint backstops writers that race past this.
func (m *Manager) lockAccount(kind account.Kind, name string) func() {
	key := string(kind) + "/" + name
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type CreateRequest struct {
	Kind           account.Kind
	Name           string
	Password       string // SSH only; other kinds generate their secret
	Days           int    // 0 means the kind's configured default
	DataLimitGB    float64
	MaxConnections int
	Notes          string
}

// Create provisions the host-side state for a new account, verifies it
// actually exists, and only then records the account. A provisioning
// or verification failure leaves the store untouched.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (account.Account, error) {
	a, err := m.create(ctx, req)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("create", "error").Inc()
		return a, err
	}
	metrics.LifecycleOpsTotal.WithLabelValues("create", "ok").Inc()
	return a, nil
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (account.Account, error) {
	var zero account.Account
	if !req.Kind.Valid() {
		return zero, fmt.Errorf("manager: unknown account kind %q", req.Kind)
	}
	if !nameRe.MatchString(req.Name) {
		return zero, fmt.Errorf("manager: invalid account name %q", req.Name)
	}
	if req.Kind == account.KindSSH && req.Password == "" {
		return zero, fmt.Errorf("manager: ssh accounts need a password")
	}
	if !req.Kind.Expires() && req.Days != 0 {
		return zero, fmt.Errorf("manager: %s accounts do not expire", req.Kind)
	}

	unlock := m.lockAccount(req.Kind, req.Name)
	defer unlock()

	if _, err := m.store.GetAccount(req.Kind, req.Name); err == nil {
		return zero, fmt.Errorf("manager: %s account %q: %w", req.Kind, req.Name, account.ErrDuplicateAccount)
	} else if !errors.Is(err, account.ErrAccountNotFound) {
		return zero, err
	}

	a, err := m.buildAccount(req)
	if err != nil {
		return zero, err
	}

	if err := m.prov.Create(ctx, a); err != nil {
		metrics.ProvisionerFailuresTotal.WithLabelValues("create").Inc()
		return zero, err
	}
	ok, err := m.prov.VerifyExists(ctx, a)
	if err != nil {
		metrics.ProvisionerFailuresTotal.WithLabelValues("verify").Inc()
		return zero, err
	}
	if !ok {
		metrics.ProvisionerFailuresTotal.WithLabelValues("verify").Inc()
		return zero, fmt.Errorf("manager: %s account %q reported created but not found on host: %w",
			req.Kind, req.Name, account.ErrProvisionVerificationFailed)
	}

	if err := m.store.InsertAccount(&a); err != nil {
		m.logger.Warn("manager: account provisioned but not recorded", "kind", a.Kind, "name", a.Name, "err", err)
		return zero, err
	}
	m.logger.Info("manager: account created", "kind", a.Kind, "name", a.Name, "id", a.ID)
	return a, nil
}

func (m *Manager) buildAccount(req CreateRequest) (account.Account, error) {
	now := m.now().UTC().Truncate(time.Second)
	a := account.Account{
		Kind:           req.Kind,
		Name:           req.Name,
		CreatedAt:      now,
		DataLimitGB:    req.DataLimitGB,
		MaxConnections: req.MaxConnections,
		IsActive:       true,
		Notes:          req.Notes,
	}

	switch req.Kind {
	case account.KindSSH:
		a.Secret = req.Password
		if a.MaxConnections == 0 {
			a.MaxConnections = m.cfg.SSH.DefaultMaxConnections
		}
		a.ExpiresAt = now.AddDate(0, 0, daysOrDefault(req.Days, m.cfg.SSH.DefaultDays))
	case account.KindVMess:
		a.Secret = uuid.NewString()
		a.ExpiresAt = now.AddDate(0, 0, daysOrDefault(req.Days, m.cfg.VMess.DefaultDays))
	case account.KindShadowsocks:
		a.Secret = randomPassword()
		ep, err := m.OutlineEndpoint()
		if err != nil {
			return a, err
		}
		a.Method = ep.Method
		port, err := m.nextOutlinePort(ep.BasePort)
		if err != nil {
			return a, err
		}
		a.Port = port
	}
	return a, nil
}

func daysOrDefault(days, def int) int {
	if days > 0 {
		return days
	}
	return def
}

func randomPassword() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// nextOutlinePort hands each Shadowsocks account its own port, one
// above the highest already assigned.
func (m *Manager) nextOutlinePort(basePort int) (int, error) {
	maxPort, err := m.store.MaxPort(account.KindShadowsocks)
	if err != nil {
		return 0, err
	}
	if maxPort >= basePort {
		return maxPort + 1, nil
	}
	return basePort, nil
}

// ToggleResult reports the post-toggle account. Warning is set when the
// store was updated but the host-side change failed and needs operator
// attention.
type ToggleResult struct {
	Account account.Account
	Warning string
}

// Toggle flips the active flag. The store is updated first; disabling
// then tears down the host-side state and enabling rebuilds it, so a
// host failure leaves the flag flipped with a warning rather than
// un-flipping it.
func (m *Manager) Toggle(ctx context.Context, kind account.Kind, name string) (ToggleResult, error) {
	unlock := m.lockAccount(kind, name)
	defer unlock()

	a, err := m.store.GetAccount(kind, name)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("toggle", "error").Inc()
		return ToggleResult{}, err
	}

	a.IsActive = !a.IsActive
	if err := m.store.SetActive(kind, name, a.IsActive); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("toggle", "error").Inc()
		return ToggleResult{}, err
	}

	res := ToggleResult{Account: a}
	if a.IsActive {
		if err := m.prov.Create(ctx, a); err != nil {
			metrics.ProvisionerFailuresTotal.WithLabelValues("create").Inc()
			res.Warning = fmt.Sprintf("account enabled but host-side create failed: %v", err)
		}
	} else {
		if err := m.prov.Remove(ctx, a); err != nil {
			metrics.ProvisionerFailuresTotal.WithLabelValues("remove").Inc()
			res.Warning = fmt.Sprintf("account disabled but host-side remove failed: %v", err)
		}
	}
	if res.Warning != "" {
		m.logger.Warn("manager: toggle left host out of sync", "kind", kind, "name", name, "warning", res.Warning)
	}
	metrics.LifecycleOpsTotal.WithLabelValues("toggle", "ok").Inc()
	return res, nil
}

// Extend pushes the expiry out by the given number of days, counted
// from the current expiry, or from now when the account has already
// expired.
func (m *Manager) Extend(ctx context.Context, kind account.Kind, name string, days int) (account.Account, error) {
	a, err := m.extend(kind, name, days)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("extend", "error").Inc()
		return a, err
	}
	metrics.LifecycleOpsTotal.WithLabelValues("extend", "ok").Inc()
	return a, nil
}

func (m *Manager) extend(kind account.Kind, name string, days int) (account.Account, error) {
	var zero account.Account
	if !kind.Expires() {
		return zero, fmt.Errorf("manager: %s accounts do not expire", kind)
	}
	if days <= 0 {
		return zero, fmt.Errorf("manager: extension must be at least one day, got %d", days)
	}

	unlock := m.lockAccount(kind, name)
	defer unlock()

	a, err := m.store.GetAccount(kind, name)
	if err != nil {
		return zero, err
	}
	base := a.ExpiresAt
	if now := m.now().UTC(); base.Before(now) {
		base = now.Truncate(time.Second)
	}
	a.ExpiresAt = base.AddDate(0, 0, days)
	if err := m.store.SetExpiry(kind, name, a.ExpiresAt); err != nil {
		return zero, err
	}
	m.logger.Info("manager: account extended", "kind", kind, "name", name, "expires_at", a.ExpiresAt)
	return a, nil
}

// Delete removes the account. The host-side teardown is best-effort:
// its failure is logged but never blocks removal from the store.
func (m *Manager) Delete(ctx context.Context, kind account.Kind, name string) error {
	unlock := m.lockAccount(kind, name)
	defer unlock()

	a, err := m.store.GetAccount(kind, name)
	if err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}
	if err := m.prov.Remove(ctx, a); err != nil {
		metrics.ProvisionerFailuresTotal.WithLabelValues("remove").Inc()
		m.logger.Warn("manager: host-side remove failed, deleting record anyway",
			"kind", kind, "name", name, "err", err)
	}
	if err := m.store.DeleteAccount(kind, name); err != nil {
		metrics.LifecycleOpsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}
	metrics.LifecycleOpsTotal.WithLabelValues("delete", "ok").Inc()
	m.logger.Info("manager: account deleted", "kind", kind, "name", name)
	return nil
}

// SetUsedData records externally measured traffic usage.
func (m *Manager) SetUsedData(kind account.Kind, name string, gb float64) error {
	if gb < 0 {
		return fmt.Errorf("manager: used data must not be negative, got %v", gb)
	}
	return m.store.SetUsedData(kind, name, gb)
}

func (m *Manager) Get(kind account.Kind, name string) (account.Account, error) {
	return m.store.GetAccount(kind, name)
}

func (m *Manager) List(kind account.Kind) ([]account.Account, error) {
	return m.store.ListAccounts(kind)
}

func (m *Manager) ListAll() ([]account.Account, error) {
	return m.store.ListAll()
}

// Link returns the shareable client URI for the account. SSH accounts
// have no URI form; use ClientConfig for those.
func (m *Manager) Link(kind account.Kind, name string) (string, error) {
	a, err := m.store.GetAccount(kind, name)
	if err != nil {
		return "", err
	}

	switch kind {
	case account.KindVMess:
		ep, err := m.VMessEndpoint()
		if err != nil {
			return "", err
		}
		return link.EncodeVMess(link.VMessParams{
			UUID:       a.Secret,
			Address:    ep.Address,
			Port:       ep.Port,
			Path:       ep.Path,
			HostHeader: ep.HostHeader,
			TLS:        ep.TLS,
			Label:      a.Name,
		}), nil
	case account.KindShadowsocks:
		ep, err := m.OutlineEndpoint()
		if err != nil {
			return "", err
		}
		return link.EncodeShadowsocks(link.ShadowsocksParams{
			Method:   a.Method,
			Password: a.Secret,
			Host:     ep.Address,
			Port:     a.Port,
			Label:    a.Name,
		}), nil
	default:
		return "", fmt.Errorf("manager: %s accounts have no share link", kind)
	}
}

// ClientConfig returns what the operator hands to the end user: a
// plain-text connection block for SSH, the share link otherwise.
func (m *Manager) ClientConfig(kind account.Kind, name string) (string, error) {
	if kind != account.KindSSH {
		return m.Link(kind, name)
	}

	a, err := m.store.GetAccount(kind, name)
	if err != nil {
		return "", err
	}
	host := m.cfg.ServerPublicIP()
	if host == "" {
		host = "<SERVER_IP>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Host: %s\n", host)
	fmt.Fprintf(&b, "Port: %d\n", m.cfg.SSH.Port)
	fmt.Fprintf(&b, "Username: %s\n", a.Name)
	fmt.Fprintf(&b, "Password: %s\n", a.Secret)
	fmt.Fprintf(&b, "Expires: %s\n", a.ExpiresAt.Format("2006-01-02"))
	if a.MaxConnections > 0 {
		fmt.Fprintf(&b, "Device limit: %d\n", a.MaxConnections)
	}
	return b.String(), nil
}

// Settings keys overriding the static endpoint config at runtime.
const (
	settingVMessAddress    = "vmess_address"
	settingVMessHostHeader = "vmess_host_header"
	settingVMessPort       = "vmess_port"
	settingVMessPath       = "vmess_path"
	settingVMessTLS        = "vmess_tls"

	settingOutlineAddress = "outline_address"
	settingOutlineMethod  = "outline_method"
)

// VMessEndpoint returns the effective VMess endpoint: the config file
// values overlaid with any runtime settings stored by the operator.
func (m *Manager) VMessEndpoint() (config.VMessConfig, error) {
	ep := m.cfg.VMess
	overlays := []struct {
		key string
		dst *string
	}{
		{settingVMessAddress, &ep.Address},
		{settingVMessHostHeader, &ep.HostHeader},
		{settingVMessPath, &ep.Path},
		{settingVMessTLS, &ep.TLS},
	}
	for _, o := range overlays {
		v, err := m.store.GetSetting(o.key)
		if err != nil {
			return ep, err
		}
		if v != "" {
			*o.dst = v
		}
	}
	if v, err := m.store.GetSetting(settingVMessPort); err != nil {
		return ep, err
	} else if v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ep, fmt.Errorf("manager: stored vmess port %q: %w", v, err)
		}
		ep.Port = port
	}
	return ep, nil
}

// UpdateVMessEndpoint persists runtime overrides for the VMess
// endpoint. Already-issued links are unaffected; links are rendered
// from the current endpoint on request.
func (m *Manager) UpdateVMessEndpoint(ep config.VMessConfig) error {
	if ep.Address == "" {
		return fmt.Errorf("manager: vmess address must not be empty")
	}
	if ep.TLS != "tls" && ep.TLS != "none" {
		return fmt.Errorf("manager: vmess tls must be \"tls\" or \"none\", got %q", ep.TLS)
	}
	if ep.Port <= 0 || ep.Port > 65535 {
		return fmt.Errorf("manager: vmess port %d out of range", ep.Port)
	}
	for key, value := range map[string]string{
		settingVMessAddress:    ep.Address,
		settingVMessHostHeader: ep.HostHeader,
		settingVMessPort:       strconv.Itoa(ep.Port),
		settingVMessPath:       ep.Path,
		settingVMessTLS:        ep.TLS,
	} {
		if err := m.store.SetSetting(key, value); err != nil {
			return err
		}
	}
	return nil
}

// OutlineEndpoint returns the effective Shadowsocks endpoint.
func (m *Manager) OutlineEndpoint() (config.OutlineConfig, error) {
	ep := m.cfg.Outline
	if v, err := m.store.GetSetting(settingOutlineAddress); err != nil {
		return ep, err
	} else if v != "" {
		ep.Address = v
	}
	if v, err := m.store.GetSetting(settingOutlineMethod); err != nil {
		return ep, err
	} else if v != "" {
		ep.Method = v
	}
	return ep, nil
}

// UpdateOutlineEndpoint persists runtime overrides for the Shadowsocks
// endpoint. The cipher applies to accounts created afterwards.
func (m *Manager) UpdateOutlineEndpoint(ep config.OutlineConfig) error {
	if ep.Address == "" {
		return fmt.Errorf("manager: outline address must not be empty")
	}
	if ep.Method == "" {
		return fmt.Errorf("manager: outline method must not be empty")
	}
	if err := m.store.SetSetting(settingOutlineAddress, ep.Address); err != nil {
		return err
	}
	return m.store.SetSetting(settingOutlineMethod, ep.Method)
}
