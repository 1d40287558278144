package probe

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
)

func testProber(t *testing.T, sessions []Session, cmdlines map[int32]string, failing map[int32]bool) *Prober {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	p := New(22, logger)
	p.sessions = func() ([]Session, error) { return sessions, nil }
	p.cmdline = func(pid int32) (string, error) {
		if failing[pid] {
			return "", fmt.Errorf("process %d vanished", pid)
		}
		return cmdlines[pid], nil
	}
	return p
}

func TestSnapshotDeviceCounting(t *testing.T) {
	sessions := []Session{
		{RemoteIP: "203.0.113.5", RemotePort: 50001, PID: 101},
		{RemoteIP: "203.0.113.5", RemotePort: 50002, PID: 102}, // same IP, second session
		{RemoteIP: "198.51.100.9", RemotePort: 40001, PID: 103},
	}
	cmdlines := map[int32]string{
		101: "sshd: bob@pts/0",
		102: "sshd: bob@pts/1",
		103: "sshd: bob [priv]",
	}
	p := testProber(t, sessions, cmdlines, nil)

	verdicts, err := p.Snapshot([]string{"bob", "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if v := verdicts["bob"]; !v.Online || v.Devices != 2 {
		t.Fatalf("bob: got %+v, want online with 2 devices", v)
	}
	if v := verdicts["alice"]; v.Online || v.Devices != 0 {
		t.Fatalf("alice: got %+v, want offline", v)
	}
}

func TestSnapshotExcludesRootAndHelpers(t *testing.T) {
	sessions := []Session{
		{RemoteIP: "203.0.113.5", RemotePort: 50001, PID: 201},
		{RemoteIP: "203.0.113.6", RemotePort: 50002, PID: 202},
		{RemoteIP: "203.0.113.7", RemotePort: 50003, PID: 203},
	}
	cmdlines := map[int32]string{
		201: "sshd: root@pts/0",
		202: "sshd: unknown [net]",
		203: "/usr/sbin/nginx -g daemon off;", // not an sshd session at all
	}
	p := testProber(t, sessions, cmdlines, nil)

	verdicts, err := p.Snapshot([]string{"root", "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if verdicts["root"].Online {
		t.Fatal("root sessions must never count")
	}
	if verdicts["bob"].Online {
		t.Fatal("no bob session present")
	}
}

func TestSnapshotFailureIsolation(t *testing.T) {
	sessions := []Session{
		{RemoteIP: "203.0.113.5", RemotePort: 50001, PID: 301},
		{RemoteIP: "198.51.100.9", RemotePort: 40001, PID: 302},
	}
	cmdlines := map[int32]string{
		302: "sshd: carol@pts/0",
	}
	p := testProber(t, sessions, cmdlines, map[int32]bool{301: true})

	verdicts, err := p.Snapshot([]string{"carol"})
	if err != nil {
		t.Fatal("one failing PID lookup must not abort the probe")
	}
	if v := verdicts["carol"]; !v.Online || v.Devices != 1 {
		t.Fatalf("carol: got %+v, want online with 1 device", v)
	}
}

func TestSessionUser(t *testing.T) {
	tests := []struct {
		args string
		user string
		ok   bool
	}{
		{"sshd: bob@pts/0", "bob", true},
		{"sshd: bob [priv]", "bob", true},
		{"sshd:  alice [priv]", "alice", true},
		{"sshd: root [priv]", "", false},
		{"sshd: unknown", "", false},
		{"sshd:", "", false},
		{"bash", "", false},
	}
	for _, tt := range tests {
		user, ok := sessionUser(tt.args)
		if user != tt.user || ok != tt.ok {
			t.Fatalf("sessionUser(%q) = %q, %v; want %q, %v", tt.args, user, ok, tt.user, tt.ok)
		}
	}
}
