package store

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yannaing86tt/ssh-panel/internal/account"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := Open(path, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sshAccount(name string) account.Account {
	return account.Account{
		Kind:           account.KindSSH,
		Name:           name,
		Secret:         "hunter2",
		CreatedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:      time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		MaxConnections: 2,
		IsActive:       true,
	}
}

func TestInsertAndGet(t *testing.T) {
	s := testStore(t)

	a := sshAccount("alice")
	if err := s.InsertAccount(&a); err != nil {
		t.Fatal(err)
	}
	if a.ID == 0 {
		t.Fatal("InsertAccount must assign an ID")
	}

	got, err := s.GetAccount(account.KindSSH, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("got %+v, want %+v", got, a)
	}

	byID, err := s.GetAccountByID(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Name != "alice" {
		t.Fatalf("GetAccountByID: got %q", byID.Name)
	}
}

func TestDuplicateName(t *testing.T) {
	s := testStore(t)

	a := sshAccount("alice")
	if err := s.InsertAccount(&a); err != nil {
		t.Fatal(err)
	}
	dup := sshAccount("alice")
	if err := s.InsertAccount(&dup); !errors.Is(err, account.ErrDuplicateAccount) {
		t.Fatalf("second insert: got %v, want ErrDuplicateAccount", err)
	}

	// Same name is fine under a different kind.
	v := account.Account{
		Kind: account.KindVMess, Name: "alice", Secret: "uuid",
		CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().Add(time.Hour).UTC(),
		IsActive: true,
	}
	if err := s.InsertAccount(&v); err != nil {
		t.Fatalf("cross-kind insert: %v", err)
	}

	n, err := s.CountAccounts(account.KindSSH)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("ssh account count: got %d, want 1", n)
	}
}

func TestNotFound(t *testing.T) {
	s := testStore(t)

	if _, err := s.GetAccount(account.KindSSH, "ghost"); !errors.Is(err, account.ErrAccountNotFound) {
		t.Fatalf("GetAccount: got %v", err)
	}
	if err := s.SetActive(account.KindSSH, "ghost", false); !errors.Is(err, account.ErrAccountNotFound) {
		t.Fatalf("SetActive: got %v", err)
	}
	if err := s.DeleteAccount(account.KindSSH, "ghost"); !errors.Is(err, account.ErrAccountNotFound) {
		t.Fatalf("DeleteAccount: got %v", err)
	}
}

func TestUpdates(t *testing.T) {
	s := testStore(t)

	a := sshAccount("alice")
	if err := s.InsertAccount(&a); err != nil {
		t.Fatal(err)
	}

	if err := s.SetActive(account.KindSSH, "alice", false); err != nil {
		t.Fatal(err)
	}
	newExpiry := a.ExpiresAt.Add(30 * 24 * time.Hour)
	if err := s.SetExpiry(account.KindSSH, "alice", newExpiry); err != nil {
		t.Fatal(err)
	}
	if err := s.SetUsedData(account.KindSSH, "alice", 4.5); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAccount(account.KindSSH, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Fatal("account should be inactive")
	}
	if !got.ExpiresAt.Equal(newExpiry) {
		t.Fatalf("expiry: got %v, want %v", got.ExpiresAt, newExpiry)
	}
	if got.UsedDataGB != 4.5 {
		t.Fatalf("used data: got %v, want 4.5", got.UsedDataGB)
	}
}

func TestListAndDelete(t *testing.T) {
	s := testStore(t)

	for i, name := range []string{"alice", "bob"} {
		a := sshAccount(name)
		a.CreatedAt = a.CreatedAt.Add(time.Duration(i) * time.Hour)
		if err := s.InsertAccount(&a); err != nil {
			t.Fatal(err)
		}
	}
	ss := account.Account{
		Kind: account.KindShadowsocks, Name: "carol", Secret: "pw",
		Method: "chacha20-ietf-poly1305", Port: 8388,
		CreatedAt: time.Now().UTC(), IsActive: true,
	}
	if err := s.InsertAccount(&ss); err != nil {
		t.Fatal(err)
	}

	sshOnly, err := s.ListAccounts(account.KindSSH)
	if err != nil {
		t.Fatal(err)
	}
	if len(sshOnly) != 2 || sshOnly[0].Name != "bob" {
		t.Fatalf("ListAccounts(ssh): got %+v", sshOnly)
	}

	all, err := s.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll: got %d accounts, want 3", len(all))
	}

	if err := s.DeleteAccount(account.KindSSH, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAccount(account.KindSSH, "alice"); !errors.Is(err, account.ErrAccountNotFound) {
		t.Fatal("alice should be gone")
	}
}

func TestMaxPort(t *testing.T) {
	s := testStore(t)

	p, err := s.MaxPort(account.KindShadowsocks)
	if err != nil {
		t.Fatal(err)
	}
	if p != 0 {
		t.Fatalf("empty store max port: got %d", p)
	}

	for i, name := range []string{"a", "b"} {
		a := account.Account{
			Kind: account.KindShadowsocks, Name: name, Secret: "pw",
			Method: "chacha20-ietf-poly1305", Port: 8388 + i,
			CreatedAt: time.Now().UTC(), IsActive: true,
		}
		if err := s.InsertAccount(&a); err != nil {
			t.Fatal(err)
		}
	}
	p, err = s.MaxPort(account.KindShadowsocks)
	if err != nil {
		t.Fatal(err)
	}
	if p != 8389 {
		t.Fatalf("max port: got %d, want 8389", p)
	}
}

func TestSettings(t *testing.T) {
	s := testStore(t)

	v, err := s.GetSetting("vmess_address")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Fatalf("unset setting: got %q", v)
	}

	if err := s.SetSetting("vmess_address", "vpn.example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("vmess_address", "vpn2.example.com"); err != nil {
		t.Fatal(err)
	}
	v, err = s.GetSetting("vmess_address")
	if err != nil {
		t.Fatal(err)
	}
	if v != "vpn2.example.com" {
		t.Fatalf("setting after upsert: got %q", v)
	}
}
