// Package account defines the shared account model for the three
// tunneling protocols the panel manages and the status-derivation rules
// applied to it at read time.
package account

import (
	"time"
)

// Kind discriminates the protocol an account belongs to.
type Kind string

const (
	KindSSH         Kind = "ssh"
	KindVMess       Kind = "vmess"
	KindShadowsocks Kind = "shadowsocks"
)

// Valid reports whether k is one of the three supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSSH, KindVMess, KindShadowsocks:
		return true
	}
	return false
}

// Expires reports whether accounts of this kind carry an expiry date.
// Shadowsocks accounts never expire.
func (k Kind) Expires() bool {
	return k != KindShadowsocks
}

// Status is derived from account fields at read time and never stored.
type Status int

const (
	StatusActive Status = iota
	StatusDisabled
	StatusExpired
	StatusQuotaExceeded
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDisabled:
		return "disabled"
	case StatusExpired:
		return "expired"
	case StatusQuotaExceeded:
		return "quota_exceeded"
	}
	return "unknown"
}

// Account is one provisioned credential entry. The same record shape
// serves all three kinds; Method and Port are only populated for
// Shadowsocks, MaxConnections only for SSH.
type Account struct {
	ID     int64
	Kind   Kind
	Name   string // unique per kind; the OS username for SSH
	Secret string // SSH password, VMess UUID, or Shadowsocks password

	// Method and Port describe the Shadowsocks server instance backing
	// the account; zero values for other kinds.
	Method string
	Port   int

	CreatedAt time.Time
	ExpiresAt time.Time // zero = non-expiring

	DataLimitGB float64 // 0 = unlimited
	UsedDataGB  float64 // externally supplied; the panel does no accounting

	// MaxConnections is an advisory cap carried for SSH accounts.
	// Nothing enforces it.
	MaxConnections int

	IsActive bool
	Notes    string
}

// ExpiredAt reports whether the account's expiry date has passed.
// Non-expiring accounts (zero ExpiresAt) are never expired.
func (a *Account) ExpiredAt(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// QuotaExceeded reports whether the account has used up its data limit.
// A zero limit means unlimited.
func (a *Account) QuotaExceeded() bool {
	return a.DataLimitGB > 0 && a.UsedDataGB >= a.DataLimitGB
}

// StatusAt derives the account status at the given instant. The order of
// checks is significant: disabled beats expired beats quota beats active.
func (a *Account) StatusAt(now time.Time) Status {
	switch {
	case !a.IsActive:
		return StatusDisabled
	case a.ExpiredAt(now):
		return StatusExpired
	case a.QuotaExceeded():
		return StatusQuotaExceeded
	}
	return StatusActive
}

// DaysRemaining returns the number of whole-or-partial days until the
// account expires, and 0 for expired or non-expiring accounts.
func (a *Account) DaysRemaining(now time.Time) int {
	if a.ExpiresAt.IsZero() || !now.Before(a.ExpiresAt) {
		return 0
	}
	d := a.ExpiresAt.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
