package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { log.SetLevel(log.InfoLevel) })

	require.NoError(t, setupLogger("debug"))
	require.Equal(t, log.DebugLevel, log.GetLevel())

	formatter, ok := log.StandardLogger().Formatter.(*log.TextFormatter)
	require.True(t, ok)
	require.True(t, formatter.FullTimestamp)
}

func TestSetupLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { log.SetLevel(log.InfoLevel) })

	require.Error(t, setupLogger("chatty"))
	require.Equal(t, log.InfoLevel, log.GetLevel())
}
