package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	f, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.WithField("job_id", "j-1").Info("claimed")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"job_id":"j-1"`)
	require.Contains(t, string(raw), `"msg":"claimed"`)
}

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingOptions{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
