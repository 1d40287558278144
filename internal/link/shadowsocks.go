// Package link encodes account connection parameters into protocol URIs
// and decodes them back. Both codecs are pure: encoding never fails for
// well-formed parameters, and malformed input always surfaces
// account.ErrMalformedURI instead of being repaired.
package link

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yannaing86tt/ssh-panel/internal/account"
)

// ShadowsocksParams are the connection parameters carried by an
// ss:// access key.
type ShadowsocksParams struct {
	Method   string
	Password string
	Host     string
	Port     int
	Label    string
}

// EncodeShadowsocks builds an access key of the form
// ss://base64(method:password)@host:port#label. The credential is
// base64-encoded with the standard alphabet and no padding; the label is
// percent-encoded.
func EncodeShadowsocks(p ShadowsocksParams) string {
	cred := base64.RawStdEncoding.EncodeToString([]byte(p.Method + ":" + p.Password))
	return fmt.Sprintf("ss://%s@%s:%d#%s", cred, p.Host, p.Port, url.PathEscape(p.Label))
}

// DecodeShadowsocks parses an ss:// access key produced by
// EncodeShadowsocks. Padded and URL-safe base64 variants are tolerated
// on input; passwords may contain ':' (the credential is split on the
// first colon only).
func DecodeShadowsocks(uri string) (ShadowsocksParams, error) {
	var p ShadowsocksParams

	rest, ok := strings.CutPrefix(uri, "ss://")
	if !ok {
		return p, fmt.Errorf("link: missing ss:// scheme: %w", account.ErrMalformedURI)
	}

	if rest, p.Label, ok = cutFragment(rest); ok {
		label, err := url.PathUnescape(p.Label)
		if err != nil {
			return ShadowsocksParams{}, fmt.Errorf("link: unescaping label: %w", account.ErrMalformedURI)
		}
		p.Label = label
	}

	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return ShadowsocksParams{}, fmt.Errorf("link: missing credential separator: %w", account.ErrMalformedURI)
	}
	cred, hostPort := rest[:at], rest[at+1:]

	decoded, err := decodeBase64(cred)
	if err != nil {
		return ShadowsocksParams{}, fmt.Errorf("link: decoding credential: %w", account.ErrMalformedURI)
	}
	method, password, ok := strings.Cut(string(decoded), ":")
	if !ok || method == "" {
		return ShadowsocksParams{}, fmt.Errorf("link: credential is not method:password: %w", account.ErrMalformedURI)
	}
	p.Method, p.Password = method, password

	host, portStr, ok := cutLastColon(hostPort)
	if !ok || host == "" {
		return ShadowsocksParams{}, fmt.Errorf("link: missing host or port: %w", account.ErrMalformedURI)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ShadowsocksParams{}, fmt.Errorf("link: invalid port %q: %w", portStr, account.ErrMalformedURI)
	}
	p.Host, p.Port = host, port

	return p, nil
}

func cutFragment(s string) (rest, frag string, ok bool) {
	if i := strings.Index(s, "#"); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

func cutLastColon(s string) (before, after string, ok bool) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// decodeBase64 accepts standard and URL-safe alphabets, with or without
// padding. Clients in the wild disagree on the variant they emit.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.RawStdEncoding,
		base64.StdEncoding,
		base64.RawURLEncoding,
		base64.URLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("not valid base64")
}
