package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "static path",
			input:    "/api/v1/resolve",
			expected: "/api/v1/resolve",
		},
		{
			name:     "single param",
			input:    "/api/v1/runs/{id}",
			expected: "/api/v1/runs/{param}",
		},
		{
			name:     "multiple params",
			input:    "/api/v1/curves/{id}/{release}",
			expected: "/api/v1/curves/{param}/{param}",
		},
		{
			name:     "empty path",
			input:    "",
			expected: "",
		},
		{
			name:     "non-path input",
			input:    "api/v1/curves/{id}",
			expected: "api/v1/curves/{id}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePath(tt.input)
			if got != tt.expected {
				t.Fatalf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
