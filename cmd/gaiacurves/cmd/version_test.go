package cmd

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)

	for _, want := range []string{
		"gaiacurves",
		"Version:    " + Version,
		"Git commit: " + GitCommit,
		"Build date: " + BuildDate,
		"Go version: " + runtime.Version(),
		"Platform:   " + runtime.GOOS + "/" + runtime.GOARCH,
	} {
		assert.Contains(t, stdout, want)
	}
}

func TestVersionCommand_RejectsArgs(t *testing.T) {
	_, _, err := execute(t, "version", "extra")
	assert.Error(t, err)
}
