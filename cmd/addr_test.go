package cmd

import (
	"os"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"port only", ":8080", false},
		{"localhost", "localhost:3400", false},
		{"ipv4", "127.0.0.1:3400", false},
		{"ipv6", "[::1]:3400", false},
		{"hostname", "api.example.com:443", false},
		{"auto-assign port", ":0", false},
		{"missing port", "localhost", true},
		{"empty", "", true},
		{"port too large", ":70000", true},
		{"non-numeric port", ":http", true},
		{"host with spaces", "bad host:8080", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseServeAddr(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default", []string{"nimbus", "serve"}, "127.0.0.1:3400"},
		{"positional", []string{"nimbus", "serve", ":8080"}, ":8080"},
		{"flag", []string{"nimbus", "serve", "--addr", ":9090"}, ":9090"},
		{"single dash", []string{"nimbus", "serve", "-addr", "localhost:9090"}, "localhost:9090"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := os.Args
			defer func() { os.Args = orig }()
			os.Args = tt.args

			got, err := parseServeAddr()
			if err != nil {
				t.Fatalf("parseServeAddr() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseServeAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseServeAddrInvalid(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()
	os.Args = []string{"nimbus", "serve", "not-an-addr"}

	if _, err := parseServeAddr(); err == nil {
		t.Error("expected error for invalid address")
	}
}
