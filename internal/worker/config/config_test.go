package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/config"
)

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	var c config.Config
	c.ApplyDefaults()

	require.Equal(t, time.Second, c.PollInterval)
	require.Equal(t, 5*time.Second, c.HTTPConnectTimeout)
	require.Equal(t, 15*time.Second, c.HTTPReadTimeout)
	require.Equal(t, int64(1<<30), c.MaxFileBytes)
	require.Equal(t, "127.0.0.1:8778", c.OperatorAddr)
	require.Equal(t, 2.0, c.WallClockSafetyFactor)
	require.Equal(t, time.Second, c.WallClockFixedOverhead)
	require.Equal(t, int64(10_000), c.CheckerCPUTimeMs)
	require.Equal(t, int64(256), c.CheckerMemoryMB)
	require.Equal(t, "info", c.Logger.Level)
	require.Equal(t, "json", c.Logger.Format)
	require.Equal(t, "stdout", c.Logger.OutputPath)
	require.Equal(t, "stderr", c.Logger.ErrorPath)
}

func TestApplyDefaultsDoesNotOverrideExplicitValues(t *testing.T) {
	c := config.Config{
		PollInterval:           5 * time.Second,
		WallClockSafetyFactor:  3.5,
		WallClockFixedOverhead: 10 * time.Second,
	}
	c.ApplyDefaults()

	require.Equal(t, 5*time.Second, c.PollInterval)
	require.Equal(t, 3.5, c.WallClockSafetyFactor)
	require.Equal(t, 10*time.Second, c.WallClockFixedOverhead)
}

func TestValidateRequiresCoreFields(t *testing.T) {
	var c config.Config
	require.Error(t, c.Validate())

	c.GUIURL = "http://ui.local"
	c.QueueNames = []string{"cpp"}
	c.ExecImage = "exec:latest"
	c.JudgeImage = "judge:latest"
	c.DockerSocket = "/var/run/docker.sock"
	c.WorkspaceRoot = "/tmp/ws"
	require.NoError(t, c.Validate())
}
