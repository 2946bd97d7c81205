package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBadgerLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := newBadgerLoggerAdapter(zap.New(core))

	adapter.Errorf("compaction failed: %v\n", "disk full")
	adapter.Warningf("slow write %dms\n", 120)
	adapter.Infof("All %d tables opened\n", 3)
	adapter.Debugf("flush done")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "compaction failed: disk full", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "slow write 120ms", entries[1].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, "All 3 tables opened", entries[2].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)

	for _, e := range entries {
		assert.Equal(t, "badger", e.ContextMap()["component"])
	}
}
