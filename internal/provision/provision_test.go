package provision

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yannaing86tt/ssh-panel/internal/account"
)

func testScripts(t *testing.T) (*Scripts, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewScripts(dir, 5*time.Second, logger)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return s, dir
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestCreateSSHPassesDays(t *testing.T) {
	s, dir := testScripts(t)
	argsFile := filepath.Join(dir, "args")
	writeScript(t, dir, "create_ssh_user.sh", `echo "$@" > `+argsFile)

	a := account.Account{
		Kind:      account.KindSSH,
		Name:      "alice",
		Secret:    "hunter2",
		ExpiresAt: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
	}
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	if want := "alice hunter2 10"; strings.TrimSpace(string(got)) != want {
		t.Fatalf("script args: got %q, want %q", strings.TrimSpace(string(got)), want)
	}
}

func TestCreateFailureWrapsOutput(t *testing.T) {
	s, dir := testScripts(t)
	writeScript(t, dir, "manage_vmess.sh", `echo "v2ray config locked" >&2; exit 3`)

	a := account.Account{Kind: account.KindVMess, Name: "bob", Secret: "uuid"}
	err := s.Create(context.Background(), a)
	if !errors.Is(err, account.ErrProvisionFailed) {
		t.Fatalf("got %v, want ErrProvisionFailed", err)
	}
	if !strings.Contains(err.Error(), "v2ray config locked") {
		t.Fatalf("error should carry script output, got %v", err)
	}
}

func TestCreateMissingScript(t *testing.T) {
	s, _ := testScripts(t)

	a := account.Account{Kind: account.KindShadowsocks, Name: "carol", Secret: "pw", Port: 8388}
	if err := s.Create(context.Background(), a); !errors.Is(err, account.ErrProvisionFailed) {
		t.Fatalf("got %v, want ErrProvisionFailed", err)
	}
}

func TestVerifyExistsVMess(t *testing.T) {
	s, dir := testScripts(t)
	writeScript(t, dir, "manage_vmess.sh", `[ "$1" = check ] && [ "$2" = known-uuid ] && exit 0; exit 1`)

	a := account.Account{Kind: account.KindVMess, Name: "bob", Secret: "known-uuid"}
	ok, err := s.VerifyExists(context.Background(), a)
	if err != nil || !ok {
		t.Fatalf("known uuid: got ok=%v err=%v", ok, err)
	}

	a.Secret = "other-uuid"
	ok, err = s.VerifyExists(context.Background(), a)
	if err != nil || ok {
		t.Fatalf("unknown uuid: got ok=%v err=%v", ok, err)
	}
}

func TestVerifyExistsShadowsocks(t *testing.T) {
	s, _ := testScripts(t)

	a := account.Account{
		Kind:   account.KindShadowsocks,
		Name:   "carol",
		Secret: "abc123",
		Method: "chacha20-ietf-poly1305",
		Port:   8388,
	}
	ok, err := s.VerifyExists(context.Background(), a)
	if err != nil || !ok {
		t.Fatalf("valid key: got ok=%v err=%v", ok, err)
	}

	a.Method = "rot13"
	ok, err = s.VerifyExists(context.Background(), a)
	if err != nil || ok {
		t.Fatalf("bogus cipher: got ok=%v err=%v", ok, err)
	}
}

func TestRemoveRunsKindScript(t *testing.T) {
	s, dir := testScripts(t)
	argsFile := filepath.Join(dir, "args")
	writeScript(t, dir, "stop_outline_server.sh", `echo "$@" > `+argsFile)

	a := account.Account{Kind: account.KindShadowsocks, Name: "carol", Secret: "pw", Port: 8388}
	if err := s.Remove(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(got)) != "carol" {
		t.Fatalf("script args: got %q", strings.TrimSpace(string(got)))
	}
}
