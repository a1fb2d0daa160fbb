package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-twin/internal/analysis"
	"market-twin/internal/config"
	"market-twin/internal/models"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), WithSymbol(logger, "INFY"))
	l := FromContext(ctx)
	l.Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFY", entry["symbol"])
	assert.Equal(t, "hello", entry["message"])
}

func TestFromContextWithoutLoggerIsNop(t *testing.T) {
	logger := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}

func TestLogAdjustmentAndVerdict(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prev)

	var buf bytes.Buffer
	logger := WithOperation(zerolog.New(&buf), "evaluate")

	LogAdjustment(logger, models.Adjustment{Index: 3, Field: "close", From: 0, To: 101.5})
	LogVerdict(logger, 30, analysis.Verdict{Tier: analysis.StrongBuy, NetScore: 6, TotalSignals: 5}, time.Millisecond)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var adj, verdict map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &adj))
	require.NoError(t, json.Unmarshal(lines[1], &verdict))

	assert.Equal(t, "adjustment", adj["event"])
	assert.Equal(t, "close", adj["field"])
	assert.Equal(t, 101.5, adj["to"])
	assert.Equal(t, "evaluate", adj["operation"])

	assert.Equal(t, "STRONG BUY", verdict["tier"])
	assert.Equal(t, 6.0, verdict["net_score"])
}

func TestNewWritesRotatedFile(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	path := filepath.Join(t.TempDir(), "logs", "twin.log")
	logger := New(config.LogConfig{Level: "warn", File: true, FilePath: path, MaxSize: 1})
	logger.Warn().Msg("written")

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.FileExists(t, path)
}
