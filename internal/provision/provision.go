// Package provision applies account changes to the host: system users
// for SSH, v2ray client entries for VMess and per-account Shadowsocks
// server instances.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.getoutline.org/sdk/x/configurl"

	"github.com/yannaing86tt/ssh-panel/internal/account"
	"github.com/yannaing86tt/ssh-panel/internal/link"
)

// Provisioner applies and removes the host-side state backing an
// account. VerifyExists reports whether that state is actually present,
// independent of what the store believes.
type Provisioner interface {
	Create(ctx context.Context, a account.Account) error
	Remove(ctx context.Context, a account.Account) error
	VerifyExists(ctx context.Context, a account.Account) (bool, error)
}

// Scripts is the shell-script backed Provisioner. Each operation runs
// one script from the configured directory under a timeout; a non-zero
// exit is a provisioning failure.
type Scripts struct {
	dir     string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewScripts(dir string, timeout time.Duration, logger *slog.Logger) *Scripts {
	return &Scripts{dir: dir, timeout: timeout, logger: logger, now: time.Now}
}

func (s *Scripts) Create(ctx context.Context, a account.Account) error {
	switch a.Kind {
	case account.KindSSH:
		days := a.DaysRemaining(s.now())
		if days < 1 {
			days = 1
		}
		return s.run(ctx, "create_ssh_user.sh", a.Name, a.Secret, strconv.Itoa(days))
	case account.KindVMess:
		return s.run(ctx, "manage_vmess.sh", "add", a.Secret)
	case account.KindShadowsocks:
		return s.run(ctx, "start_outline_server.sh", a.Name, a.Secret, strconv.Itoa(a.Port))
	default:
		return fmt.Errorf("provision: unknown account kind %q", a.Kind)
	}
}

func (s *Scripts) Remove(ctx context.Context, a account.Account) error {
	switch a.Kind {
	case account.KindSSH:
		return s.run(ctx, "delete_ssh_user.sh", a.Name)
	case account.KindVMess:
		return s.run(ctx, "manage_vmess.sh", "remove", a.Secret)
	case account.KindShadowsocks:
		return s.run(ctx, "stop_outline_server.sh", a.Name)
	default:
		return fmt.Errorf("provision: unknown account kind %q", a.Kind)
	}
}

// VerifyExists checks the host-side state directly. For SSH it asks the
// system user database, for VMess the v2ray config, and for
// Shadowsocks it validates that the access key the account would be
// issued builds a usable dialer.
func (s *Scripts) VerifyExists(ctx context.Context, a account.Account) (bool, error) {
	switch a.Kind {
	case account.KindSSH:
		return s.probeExit(ctx, "id", a.Name)
	case account.KindVMess:
		return s.probeExit(ctx, filepath.Join(s.dir, "manage_vmess.sh"), "check", a.Secret)
	case account.KindShadowsocks:
		key := link.EncodeShadowsocks(link.ShadowsocksParams{
			Method:   a.Method,
			Password: a.Secret,
			Host:     "127.0.0.1",
			Port:     a.Port,
			Label:    a.Name,
		})
		if _, err := configurl.NewDefaultProviders().NewStreamDialer(ctx, key); err != nil {
			return false, nil
		}
		return true, nil
	default:
		return false, fmt.Errorf("provision: unknown account kind %q", a.Kind)
	}
}

func (s *Scripts) run(ctx context.Context, script string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	path := filepath.Join(s.dir, script)
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		s.logger.Error("provision: script failed", "script", script, "err", err, "output", detail)
		return fmt.Errorf("provision: %s: %s: %w", script, detail, account.ErrProvisionFailed)
	}
	s.logger.Debug("provision: script ok", "script", script)
	return nil
}

// probeExit runs an existence check where exit 0 means present and a
// non-zero exit means absent. Only failures to run the command at all
// are reported as errors.
func (s *Scripts) probeExit(ctx context.Context, name string, args ...string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("provision: checking %s: %w", name, err)
	}
	return true, nil
}
