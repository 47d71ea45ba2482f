package config

import (
	"testing"
)

func TestRewriteLocalhost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		inDocker bool
		expected string
	}{
		{
			name:     "outside docker unchanged",
			input:    "postgres://u:p@localhost:5432/datahub",
			inDocker: false,
			expected: "postgres://u:p@localhost:5432/datahub",
		},
		{
			name:     "localhost with port",
			input:    "postgres://u:p@localhost:5432/datahub",
			inDocker: true,
			expected: "postgres://u:p@host.docker.internal:5432/datahub",
		},
		{
			name:     "loopback address",
			input:    "mongodb://127.0.0.1:27017",
			inDocker: true,
			expected: "mongodb://host.docker.internal:27017",
		},
		{
			name:     "remote host unchanged",
			input:    "postgres://db.example.com:5432/datahub",
			inDocker: true,
			expected: "postgres://db.example.com:5432/datahub",
		},
		{
			name:     "no port",
			input:    "mongodb://localhost/datahub",
			inDocker: true,
			expected: "mongodb://host.docker.internal/datahub",
		},
		{
			name:     "empty",
			input:    "",
			inDocker: true,
			expected: "",
		},
		{
			name:     "not a url",
			input:    "host=localhost user=x",
			inDocker: true,
			expected: "host=localhost user=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriteLocalhost(tt.input, tt.inDocker)
			if got != tt.expected {
				t.Errorf("rewriteLocalhost(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsRunningInDocker_Cached(t *testing.T) {
	first := IsRunningInDocker()
	if IsRunningInDocker() != first {
		t.Error("IsRunningInDocker() result changed between calls")
	}
}
