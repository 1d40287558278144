package link

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/yannaing86tt/ssh-panel/internal/account"
)

// VMessParams are the connection parameters carried by a vmess:// link.
// Only WebSocket transport is issued by this panel.
//
// HostHeader is the WS Host header / SNI domain, distinct from Address
// (the literal IP or domain the client dials) in CDN-fronting setups.
// An empty HostHeader is normalized to Address at encode time, so
// Decode(Encode(p)) returns p only when HostHeader is explicit.
type VMessParams struct {
	UUID       string
	Address    string
	Port       int
	Path       string
	HostHeader string
	TLS        string // "tls" or "none"
	Label      string
}

// vmessRecord is the base64-JSON payload of a vmess:// link. Field order
// is the wire order; clients key off the presence of "sni" to decide
// whether to validate the server certificate, so it is emitted only for
// TLS links. This is the single place to adjust the optional-field set
// if client compatibility requires it.
type vmessRecord struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni,omitempty"`
}

// EncodeVMess builds a vmess:// link from a canonical base64-JSON
// record with stable key order and no extraneous whitespace.
func EncodeVMess(p VMessParams) string {
	rec := vmessRecord{
		V:    "2",
		PS:   p.Label,
		Add:  p.Address,
		Port: strconv.Itoa(p.Port),
		ID:   p.UUID,
		Aid:  "0",
		Net:  "ws",
		Type: "none",
		Host: p.HostHeader,
		Path: p.Path,
		TLS:  p.TLS,
	}
	if rec.Host == "" {
		rec.Host = p.Address
	}
	if p.TLS == "tls" {
		rec.SNI = p.Address
	}

	// Marshal of a flat string struct cannot fail.
	raw, _ := json.Marshal(rec)
	return "vmess://" + base64.StdEncoding.EncodeToString(raw)
}

// DecodeVMess parses a vmess:// link produced by EncodeVMess.
// HostHeader is returned as the wire "host" value verbatim.
func DecodeVMess(uri string) (VMessParams, error) {
	payload, ok := strings.CutPrefix(uri, "vmess://")
	if !ok {
		return VMessParams{}, fmt.Errorf("link: missing vmess:// scheme: %w", account.ErrMalformedURI)
	}

	raw, err := decodeBase64(payload)
	if err != nil {
		return VMessParams{}, fmt.Errorf("link: decoding payload: %w", account.ErrMalformedURI)
	}

	var rec vmessRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return VMessParams{}, fmt.Errorf("link: parsing payload: %w", account.ErrMalformedURI)
	}
	if rec.ID == "" || rec.Add == "" {
		return VMessParams{}, fmt.Errorf("link: missing id or add field: %w", account.ErrMalformedURI)
	}
	port, err := strconv.Atoi(rec.Port)
	if err != nil || port <= 0 || port > 65535 {
		return VMessParams{}, fmt.Errorf("link: invalid port %q: %w", rec.Port, account.ErrMalformedURI)
	}

	return VMessParams{
		UUID:       rec.ID,
		Address:    rec.Add,
		Port:       port,
		Path:       rec.Path,
		HostHeader: rec.Host,
		TLS:        rec.TLS,
		Label:      rec.PS,
	}, nil
}
