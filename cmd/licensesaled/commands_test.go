package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ResetFlags()
	migrateSteps = 0
	var out bytes.Buffer
	SetOutput(&out)
	err := ExecuteWithArgs(args)
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	assert.Equal(t, "licensesaled", rootCmd.Use)

	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"serve", "migrate", "version"} {
		assert.Contains(t, names, want)
	}

	_, err := run(t, "--help")
	assert.NoError(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "licensesaled dev\n", out)

	out, err = run(t, "version", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "commit:  unknown")
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "serve", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("missing owner", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sale.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))
		_, err := run(t, "serve", "--config", path)
		assert.ErrorContains(t, err, "invalid configuration")
		assert.ErrorContains(t, err, "sale.owner is required")
	})
}

func TestMigrateCmd_RequiresDatabase(t *testing.T) {
	t.Setenv("LICENSESALE_DATABASE_URL", "")
	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "database.url is required")
}
