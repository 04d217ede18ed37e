package bkclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDurationHelpersConvertFromTheirConfiguredUnits(t *testing.T) {
	var cfg = Config{
		ReadTimeoutSeconds:    10,
		TimeoutTaskIntervalMs: 1000,
		RequestTimeoutSeconds: 5,
		TCPKeepAliveSeconds:   30,
		DialTimeoutSeconds:    10,
	}
	require.Equal(t, 10*time.Second, cfg.ReadTimeout())
	require.Equal(t, time.Second, cfg.TimeoutTaskInterval())
	require.Equal(t, 5*time.Second, cfg.RequestTimeout())
	require.Equal(t, 30*time.Second, cfg.TCPKeepAlive())
	require.Equal(t, 10*time.Second, cfg.DialTimeout())
}

func TestDefaultConfigIsNonZero(t *testing.T) {
	var cfg = DefaultConfig()
	require.Positive(t, cfg.ReadTimeoutSeconds)
	require.Positive(t, cfg.RequestTimeoutSeconds)
	require.Positive(t, cfg.MaxDispatchQueues)
}
