// Package probe infers live SSH connection state from the OS socket and
// process tables. It keeps no state of its own: every snapshot is
// rebuilt from scratch and reflects only what the kernel reports at
// that moment.
package probe

import (
	"fmt"
	"log/slog"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Session is one established TCP session on the SSH port, attributed to
// the daemon process that owns it.
type Session struct {
	RemoteIP   string
	RemotePort uint32
	PID        int32
}

// Verdict is the ephemeral per-account connection record. Devices is
// the number of distinct remote IPs with at least one session — a
// heuristic, not a cryptographic device identity: two devices behind
// the same NAT count as one.
type Verdict struct {
	Online  bool `json:"online"`
	Devices int  `json:"devices"`
}

// Prober maps live SSH sessions back to account names. The sessions and
// cmdline fields default to the gopsutil-backed implementations and are
// injectable for tests.
type Prober struct {
	sshPort  uint32
	logger   *slog.Logger
	sessions func() ([]Session, error)
	cmdline  func(pid int32) (string, error)
}

// New creates a Prober watching the given SSH port.
func New(sshPort int, logger *slog.Logger) *Prober {
	p := &Prober{
		sshPort: uint32(sshPort),
		logger:  logger,
		cmdline: processCmdline,
	}
	p.sessions = p.establishedSessions
	return p
}

// Snapshot returns a verdict for every name in names. Per-session
// resolution failures are logged and the session dropped; a snapshot
// never fails wholesale once the socket table has been read.
func (p *Prober) Snapshot(names []string) (map[string]Verdict, error) {
	sessions, err := p.sessions()
	if err != nil {
		return nil, fmt.Errorf("probe: listing sessions: %w", err)
	}

	// Username -> set of distinct remote IPs.
	devices := make(map[string]map[string]struct{})
	for _, s := range sessions {
		args, err := p.cmdline(s.PID)
		if err != nil {
			p.logger.Debug("probe: resolving session owner", "pid", s.PID, "err", err)
			continue
		}
		user, ok := sessionUser(args)
		if !ok {
			// Privilege-separation and pre-auth helper processes.
			continue
		}
		if devices[user] == nil {
			devices[user] = make(map[string]struct{})
		}
		devices[user][s.RemoteIP] = struct{}{}
	}

	verdicts := make(map[string]Verdict, len(names))
	for _, name := range names {
		if ips, ok := devices[name]; ok {
			verdicts[name] = Verdict{Online: true, Devices: len(ips)}
		} else {
			verdicts[name] = Verdict{}
		}
	}
	return verdicts, nil
}

// sessionUser extracts the username from an sshd session label of the
// form "sshd: <username>@<device>" or "sshd: <username> [priv]".
// Sessions owned by root (pre-auth helpers) do not count.
func sessionUser(args string) (string, bool) {
	rest, ok := strings.CutPrefix(args, "sshd:")
	if !ok {
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	user := fields[0]
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if user == "" || user == "root" || user == "unknown" {
		return "", false
	}
	return user, true
}

// establishedSessions reads established TCP connections whose local
// port is the SSH port and which belong to a known process.
func (p *Prober) establishedSessions() ([]Session, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return nil, err
	}
	var sessions []Session
	for _, c := range conns {
		if c.Status != "ESTABLISHED" || c.Laddr.Port != p.sshPort || c.Pid == 0 {
			continue
		}
		sessions = append(sessions, Session{
			RemoteIP:   c.Raddr.IP,
			RemotePort: c.Raddr.Port,
			PID:        c.Pid,
		})
	}
	return sessions, nil
}

func processCmdline(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return proc.Cmdline()
}
