package logger

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerService_writes_rotated_file(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewLoggerService(Config{Dir: dir, Level: "info", File: true, Env: "prod"})
	require.NoError(t, err)

	svc.Log.Info("hello")
	require.NoError(t, svc.OnApplicationShutdown(context.Background(), ""))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Regexp(t, `^app-\d{4}-\d{2}-\d{2}\.log$`, entries[0].Name())
}

func TestNewLoggerService_rejects_unknown_level(t *testing.T) {
	_, err := NewLoggerService(Config{Level: "loud"})
	assert.Error(t, err)
}
