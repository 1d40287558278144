package link

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yannaing86tt/ssh-panel/internal/account"
)

func TestShadowsocksGoldenKey(t *testing.T) {
	p := ShadowsocksParams{
		Method:   "chacha20-ietf-poly1305",
		Password: "abc123",
		Host:     "1.2.3.4",
		Port:     8388,
		Label:    "Carol",
	}
	const want = "ss://Y2hhY2hhMjAtaWV0Zi1wb2x5MTMwNTphYmMxMjM@1.2.3.4:8388#Carol"
	if got := EncodeShadowsocks(p); got != want {
		t.Fatalf("EncodeShadowsocks:\n got %s\nwant %s", got, want)
	}
}

func TestShadowsocksRoundTrip(t *testing.T) {
	tests := []ShadowsocksParams{
		{Method: "chacha20-ietf-poly1305", Password: "abc123", Host: "1.2.3.4", Port: 8388, Label: "Carol"},
		{Method: "aes-256-gcm", Password: "pa:ss:word", Host: "vpn.example.com", Port: 443, Label: "with spaces"},
		{Method: "chacha20-ietf-poly1305", Password: "p+/=w", Host: "10.0.0.1", Port: 65535, Label: ""},
	}
	for _, p := range tests {
		got, err := DecodeShadowsocks(EncodeShadowsocks(p))
		if err != nil {
			t.Fatalf("decode(%+v): %v", p, err)
		}
		if got != p {
			t.Fatalf("round trip: got %+v, want %+v", got, p)
		}
	}
}

func TestShadowsocksDecodeTolerantPadding(t *testing.T) {
	// Same credential, padded variant. Must decode identically.
	cred := base64.StdEncoding.EncodeToString([]byte("aes-256-gcm:secret"))
	p, err := DecodeShadowsocks("ss://" + cred + "@1.2.3.4:8388#x")
	if err != nil {
		t.Fatal(err)
	}
	if p.Method != "aes-256-gcm" || p.Password != "secret" {
		t.Fatalf("got %+v", p)
	}
}

func TestShadowsocksPasswordFirstColonSplit(t *testing.T) {
	p := ShadowsocksParams{Method: "aes-256-gcm", Password: "a:b:c", Host: "h.example", Port: 80, Label: "x"}
	got, err := DecodeShadowsocks(EncodeShadowsocks(p))
	if err != nil {
		t.Fatal(err)
	}
	if got.Password != "a:b:c" {
		t.Fatalf("password split on wrong colon: %q", got.Password)
	}
}

func TestShadowsocksDecodeMalformed(t *testing.T) {
	bad := []string{
		"",
		"vmess://abc",
		"ss://no-at-sign",
		"ss://!!notbase64!!@1.2.3.4:8388",
		"ss://" + base64.RawStdEncoding.EncodeToString([]byte("nocolon")) + "@1.2.3.4:8388",
		"ss://Y2hhY2hhOnB3@hostonly",
		"ss://Y2hhY2hhOnB3@1.2.3.4:notaport",
		"ss://Y2hhY2hhOnB3@1.2.3.4:99999",
	}
	for _, uri := range bad {
		if _, err := DecodeShadowsocks(uri); !errors.Is(err, account.ErrMalformedURI) {
			t.Fatalf("DecodeShadowsocks(%q) = %v, want ErrMalformedURI", uri, err)
		}
	}
}

func TestVMessTLSScenario(t *testing.T) {
	p := VMessParams{
		UUID:    "11111111-1111-1111-1111-111111111111",
		Address: "example.com",
		Port:    443,
		Path:    "/ws",
		TLS:     "tls",
		Label:   "Bob",
	}
	uri := EncodeVMess(p)
	if !strings.HasPrefix(uri, "vmess://") {
		t.Fatalf("link must start with vmess://, got %s", uri)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "vmess://"))
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]string
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatal(err)
	}
	if rec["sni"] != "example.com" {
		t.Fatalf("sni = %q, want example.com", rec["sni"])
	}
	if rec["host"] != "example.com" {
		t.Fatalf("host = %q, want fallback to address", rec["host"])
	}
	if rec["net"] != "ws" || rec["aid"] != "0" || rec["v"] != "2" {
		t.Fatalf("fixed fields wrong: %v", rec)
	}
}

func TestVMessConditionalSNI(t *testing.T) {
	p := VMessParams{UUID: "u", Address: "1.2.3.4", Port: 80, Path: "/ws", TLS: "none", Label: "plain"}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(EncodeVMess(p), "vmess://"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), `"sni"`) {
		t.Fatalf("non-TLS link must not carry sni key: %s", raw)
	}
}

func TestVMessCanonicalKeyOrder(t *testing.T) {
	p := VMessParams{UUID: "u", Address: "a", Port: 1, Path: "/", HostHeader: "h", TLS: "tls", Label: "l"}
	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(EncodeVMess(p), "vmess://"))
	const want = `{"v":"2","ps":"l","add":"a","port":"1","id":"u","aid":"0","net":"ws","type":"none","host":"h","path":"/","tls":"tls","sni":"a"}`
	if string(raw) != want {
		t.Fatalf("canonical form:\n got %s\nwant %s", raw, want)
	}
}

func TestVMessRoundTrip(t *testing.T) {
	tests := []VMessParams{
		{UUID: "11111111-1111-1111-1111-111111111111", Address: "example.com", Port: 443, Path: "/ws", HostHeader: "cdn.example.com", TLS: "tls", Label: "Bob"},
		{UUID: "22222222-2222-2222-2222-222222222222", Address: "198.51.100.7", Port: 80, Path: "/tunnel", HostHeader: "front.example", TLS: "none", Label: "no tls"},
	}
	for _, p := range tests {
		got, err := DecodeVMess(EncodeVMess(p))
		if err != nil {
			t.Fatalf("decode(%+v): %v", p, err)
		}
		if got != p {
			t.Fatalf("round trip: got %+v, want %+v", got, p)
		}
	}
}

func TestVMessEmptyHostNormalizes(t *testing.T) {
	p := VMessParams{UUID: "u", Address: "example.com", Port: 443, Path: "/ws", TLS: "tls", Label: "x"}
	got, err := DecodeVMess(EncodeVMess(p))
	if err != nil {
		t.Fatal(err)
	}
	if got.HostHeader != "example.com" {
		t.Fatalf("empty host header must encode as the address, decoded %q", got.HostHeader)
	}
}

func TestVMessDecodeMalformed(t *testing.T) {
	bad := []string{
		"",
		"ss://abc",
		"vmess://!!notbase64!!",
		"vmess://" + base64.StdEncoding.EncodeToString([]byte("not json")),
		"vmess://" + base64.StdEncoding.EncodeToString([]byte(`{"v":"2"}`)),
		"vmess://" + base64.StdEncoding.EncodeToString([]byte(`{"id":"u","add":"a","port":"notaport"}`)),
	}
	for _, uri := range bad {
		if _, err := DecodeVMess(uri); !errors.Is(err, account.ErrMalformedURI) {
			t.Fatalf("DecodeVMess(%q) = %v, want ErrMalformedURI", uri, err)
		}
	}
}
