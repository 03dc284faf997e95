package main

import (
	"strings"
	"testing"
)

func TestParseUserFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"user only", []string{"-user", "alice"}, "alice"},
		{"equals form", []string{"-user=alice"}, "alice"},
		{"with config flags", []string{"-user", "alice", "-d", "postgres://example/db", "-k", strings.Repeat("01", 32)}, "alice"},
		{"config flags first", []string{"-d", "postgres://example/db", "-user", "alice"}, "alice"},
		{"missing", []string{"-d", "postgres://example/db"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUserFlag(tt.args)
			if err != nil {
				t.Fatalf("parseUserFlag(%v) error: %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseUserFlag(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
