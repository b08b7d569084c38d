package log

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Level: "info",
		File: FileLogConfig{
			RootPath: dir,
			Filename: "relay.log",
		},
	}

	lg, props, err := InitLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, props)

	lg.Debug("hidden")
	lg.Info("visible", zap.String("name", "alice"))
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "relay.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "visible")
	assert.Contains(t, string(data), "alice")
	assert.NotContains(t, string(data), "hidden")
	assert.Equal(t, zapcore.InfoLevel, props.Level.Level())
}

func TestInitLoggerRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "taken"), 0o755))

	_, _, err := InitLogger(&Config{File: FileLogConfig{RootPath: dir, Filename: "taken"}})
	assert.Error(t, err)
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, zapcore.AddSync(&strings.Builder{}))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for text, want := range map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"trace": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		got, err := parseLevel(text)
		require.NoError(t, err, text)
		assert.Equal(t, want, got, text)
	}
}

func TestJSONFormat(t *testing.T) {
	var sb strings.Builder
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: FormatJSON}, zapcore.AddSync(&sb))
	require.NoError(t, err)

	lg.Info("joined", zap.Uint64(FieldNameSessionID, 7))
	assert.Contains(t, sb.String(), `"message":"joined"`)
	assert.Contains(t, sb.String(), `"sessionID":7`)
}

func TestCtxCarriesFields(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "debug"})
	require.NoError(t, err)

	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, props)
	defer ReplaceGlobals(oldL, oldP)

	ctx := WithFields(context.Background(), FieldSessionID(42))
	ctx = WithModule(ctx, "relay")

	assert.NotSame(t, Ctx(context.Background()).Logger, Ctx(ctx).Logger)
	assert.NotNil(t, Ctx(nil))
	Ctx(ctx).Info("ctx logger works")
}

func TestRatedWarnWithGroup(t *testing.T) {
	l := With(FieldComponent("test")).WithRateGroup("log_test", 1, 1)
	assert.True(t, l.RatedWarn(1, "first"))
	assert.False(t, l.RatedWarn(1, "second"))
}

func TestBinderFallsBackToGlobal(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	custom := With(FieldComponent("bound"))
	b.SetLogger(custom)
	assert.Same(t, custom, b.Logger())
}
