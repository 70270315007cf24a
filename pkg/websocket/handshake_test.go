package websocket

import (
	"strings"
	"testing"
)

// https://datatracker.ietf.org/doc/html/rfc6455#section-1.3
func TestComputeAcceptRFCExample(t *testing.T) {
	const key = "dGhlIHNhbXBsZSBub25jZQ==" // base64("the sample nonce")
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="

	if got := computeAccept(key); got != want {
		t.Errorf("computeAccept(%q) = %q, want %q", key, got, want)
	}
}

func TestGenerateNonce(t *testing.T) {
	nonce, err := generateNonce(defaultRandReader)
	if err != nil {
		t.Fatalf("generateNonce() error = %v", err)
	}
	// 16 raw bytes base64-encode to 24 characters including padding.
	if len(nonce) != 24 {
		t.Errorf("generateNonce() length = %d, want 24", len(nonce))
	}
}

func TestHeaderHasToken(t *testing.T) {
	tests := []struct {
		name  string
		value string
		token string
		want  bool
	}{
		{name: "exact", value: "Upgrade", token: "upgrade", want: true},
		{name: "in_list", value: "keep-alive, Upgrade", token: "Upgrade", want: true},
		{name: "absent", value: "keep-alive", token: "Upgrade", want: false},
		{name: "substring_does_not_count", value: "Upgrades", token: "Upgrade", want: false},
		{name: "empty_value", value: "", token: "Upgrade", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headerHasToken(tt.value, tt.token); got != tt.want {
				t.Errorf("headerHasToken(%q, %q) = %v, want %v", tt.value, tt.token, got, tt.want)
			}
		})
	}
}

func TestIsSubset(t *testing.T) {
	tests := []struct {
		name    string
		got     []string
		offered []string
		want    bool
	}{
		{name: "empty_is_subset", got: nil, offered: []string{"chat"}, want: true},
		{name: "case_insensitive_match", got: []string{"Chat"}, offered: []string{"chat"}, want: true},
		{name: "unoffered", got: []string{"soap"}, offered: []string{"chat"}, want: false},
		{name: "nothing_offered", got: []string{"chat"}, offered: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSubset(tt.got, tt.offered); got != tt.want {
				t.Errorf("isSubset(%v, %v) = %v, want %v", tt.got, tt.offered, got, tt.want)
			}
		})
	}
}

func TestSplitCommaList(t *testing.T) {
	got := splitCommaList(" chat , superchat ,, ")
	if len(got) != 2 || got[0] != "chat" || got[1] != "superchat" {
		t.Errorf("splitCommaList() = %v, want [chat superchat]", got)
	}
	if splitCommaList("") != nil {
		t.Error("splitCommaList(\"\") should be nil")
	}
}

func TestStatusCodeFromLine(t *testing.T) {
	code, err := statusCodeFromLine("HTTP/1.1 101 Switching Protocols")
	if err != nil || code != 101 {
		t.Errorf("statusCodeFromLine() = %d, %v, want 101, nil", code, err)
	}

	if _, err := statusCodeFromLine("garbage"); err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Errorf("statusCodeFromLine(garbage) error = %v, want a malformed-line error", err)
	}
}
