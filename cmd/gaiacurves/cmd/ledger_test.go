package cmd

import (
	"testing"

	"github.com/gaiacurves/gaiacurves/internal/storage/postgres"
	"github.com/stretchr/testify/assert"
)

func TestLedgerCommands_RequireDatabase(t *testing.T) {
	useArchive(t)

	for _, args := range [][]string{
		{"migrate", "up"},
		{"migrate", "down", "--steps", "2"},
		{"migrate", "version"},
		{"runs", "list"},
		{"runs", "show", "01J0000000000000000000000"},
	} {
		_, _, err := execute(t, args...)
		assert.ErrorIs(t, err, postgres.ErrNoDatabase, "%v", args)
	}
}

func TestRunsCommand_BadFormat(t *testing.T) {
	useArchive(t)

	_, _, err := execute(t, "runs", "list", "--format", "csv")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, postgres.ErrNoDatabase)
}

func TestFinishedAt(t *testing.T) {
	assert.Equal(t, "N/A", finishedAt(postgres.RunRecord{}))
}
