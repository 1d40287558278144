// Package store is the SQLite-backed account and settings store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yannaing86tt/ssh-panel/internal/account"
)

// Store is a SQLite-backed persistent account store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and initialises
// the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w: %w", path, account.ErrStoreUnavailable, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w: %w", pragma, account.ErrStoreUnavailable, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  name TEXT NOT NULL,
  secret TEXT NOT NULL,
  method TEXT NOT NULL DEFAULT '',
  port INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL DEFAULT 0,
  data_limit_gb REAL NOT NULL DEFAULT 0,
  used_data_gb REAL NOT NULL DEFAULT 0,
  max_connections INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  notes TEXT NOT NULL DEFAULT '',
  UNIQUE(kind, name)
);

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL DEFAULT ''
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: init schema: %w: %w", account.ErrStoreUnavailable, err)
	}
	return nil
}

const accountColumns = `id, kind, name, secret, method, port, created_at, expires_at,
       data_limit_gb, used_data_gb, max_connections, is_active, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(r rowScanner) (account.Account, error) {
	var a account.Account
	var kind string
	var createdAt, expiresAt int64
	var active int
	err := r.Scan(&a.ID, &kind, &a.Name, &a.Secret, &a.Method, &a.Port,
		&createdAt, &expiresAt, &a.DataLimitGB, &a.UsedDataGB,
		&a.MaxConnections, &active, &a.Notes)
	if err != nil {
		return a, err
	}
	a.Kind = account.Kind(kind)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	if expiresAt != 0 {
		a.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	}
	a.IsActive = active != 0
	return a, nil
}

// InsertAccount inserts a new account and assigns its ID. The duplicate
// check and insert run in one transaction; the UNIQUE(kind, name)
// constraint backstops concurrent writers.
func (s *Store) InsertAccount(a *account.Account) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w: %w", account.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM accounts WHERE kind = ? AND name = ?`,
		string(a.Kind), a.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: duplicate check: %w: %w", account.ErrStoreUnavailable, err)
	}
	if exists > 0 {
		return fmt.Errorf("store: %s account %q: %w", a.Kind, a.Name, account.ErrDuplicateAccount)
	}

	var expiresAt int64
	if !a.ExpiresAt.IsZero() {
		expiresAt = a.ExpiresAt.Unix()
	}
	res, err := tx.Exec(
		`INSERT INTO accounts
		 (kind, name, secret, method, port, created_at, expires_at,
		  data_limit_gb, used_data_gb, max_connections, is_active, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.Kind), a.Name, a.Secret, a.Method, a.Port,
		a.CreatedAt.Unix(), expiresAt,
		a.DataLimitGB, a.UsedDataGB, a.MaxConnections, boolToInt(a.IsActive), a.Notes,
	)
	if err != nil {
		return fmt.Errorf("store: insert account %q: %w: %w", a.Name, account.ErrStoreUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert account %q: %w: %w", a.Name, account.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit insert: %w: %w", account.ErrStoreUnavailable, err)
	}
	a.ID = id
	return nil
}

// GetAccount returns the account with the given kind and name.
func (s *Store) GetAccount(kind account.Kind, name string) (account.Account, error) {
	row := s.db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE kind = ? AND name = ?`,
		string(kind), name)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("store: %s account %q: %w", kind, name, account.ErrAccountNotFound)
	}
	if err != nil {
		return a, fmt.Errorf("store: get account %q: %w: %w", name, account.ErrStoreUnavailable, err)
	}
	return a, nil
}

// GetAccountByID returns the account with the given store-assigned ID.
func (s *Store) GetAccountByID(id int64) (account.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("store: account id %d: %w", id, account.ErrAccountNotFound)
	}
	if err != nil {
		return a, fmt.Errorf("store: get account %d: %w: %w", id, account.ErrStoreUnavailable, err)
	}
	return a, nil
}

// ListAccounts returns all accounts of one kind, newest first.
func (s *Store) ListAccounts(kind account.Kind) ([]account.Account, error) {
	return s.listWhere(`WHERE kind = ? ORDER BY created_at DESC, id DESC`, string(kind))
}

// ListAll returns every account, newest first.
func (s *Store) ListAll() ([]account.Account, error) {
	return s.listWhere(`ORDER BY created_at DESC, id DESC`)
}

func (s *Store) listWhere(clause string, args ...any) ([]account.Account, error) {
	rows, err := s.db.Query(`SELECT `+accountColumns+` FROM accounts `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query accounts: %w: %w", account.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan account: %w: %w", account.ErrStoreUnavailable, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate accounts: %w: %w", account.ErrStoreUnavailable, err)
	}
	return out, nil
}

// SetActive updates the is_active flag.
func (s *Store) SetActive(kind account.Kind, name string, active bool) error {
	return s.updateField(kind, name, `is_active`, boolToInt(active))
}

// SetExpiry updates the expiry timestamp.
func (s *Store) SetExpiry(kind account.Kind, name string, expiresAt time.Time) error {
	var v int64
	if !expiresAt.IsZero() {
		v = expiresAt.Unix()
	}
	return s.updateField(kind, name, `expires_at`, v)
}

// SetUsedData updates the externally-supplied usage counter.
func (s *Store) SetUsedData(kind account.Kind, name string, gb float64) error {
	return s.updateField(kind, name, `used_data_gb`, gb)
}

func (s *Store) updateField(kind account.Kind, name, column string, value any) error {
	res, err := s.db.Exec(
		`UPDATE accounts SET `+column+` = ? WHERE kind = ? AND name = ?`,
		value, string(kind), name)
	if err != nil {
		return fmt.Errorf("store: update %s: %w: %w", column, account.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update %s: %w: %w", column, account.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s account %q: %w", kind, name, account.ErrAccountNotFound)
	}
	return nil
}

// DeleteAccount removes the account row.
func (s *Store) DeleteAccount(kind account.Kind, name string) error {
	res, err := s.db.Exec(`DELETE FROM accounts WHERE kind = ? AND name = ?`,
		string(kind), name)
	if err != nil {
		return fmt.Errorf("store: delete account %q: %w: %w", name, account.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete account %q: %w: %w", name, account.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s account %q: %w", kind, name, account.ErrAccountNotFound)
	}
	return nil
}

// CountAccounts returns the number of accounts of one kind.
func (s *Store) CountAccounts(kind account.Kind) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count accounts: %w: %w", account.ErrStoreUnavailable, err)
	}
	return n, nil
}

// MaxPort returns the highest port assigned to accounts of one kind,
// or 0 when none exist.
func (s *Store) MaxPort(kind account.Kind) (int, error) {
	var p int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(port), 0) FROM accounts WHERE kind = ?`,
		string(kind)).Scan(&p)
	if err != nil {
		return 0, fmt.Errorf("store: max port: %w: %w", account.ErrStoreUnavailable, err)
	}
	return p, nil
}

// GetSetting returns the value stored under key, or "" when unset.
func (s *Store) GetSetting(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %q: %w: %w", key, account.ErrStoreUnavailable, err)
	}
	return v, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %q: %w: %w", key, account.ErrStoreUnavailable, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
