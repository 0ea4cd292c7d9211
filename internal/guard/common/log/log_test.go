package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type recordingLogger struct {
	entries []string
	fields  []map[string]any
}

func (l *recordingLogger) record(level string, f map[string]any, msg string) {
	l.entries = append(l.entries, level+":"+msg)
	l.fields = append(l.fields, f)
}

func (l *recordingLogger) Info(f map[string]any, msg string)  { l.record("INFO", f, msg) }
func (l *recordingLogger) Error(f map[string]any, msg string) { l.record("ERROR", f, msg) }
func (l *recordingLogger) Debug(f map[string]any, msg string) { l.record("DEBUG", f, msg) }
func (l *recordingLogger) Warn(f map[string]any, msg string)  { l.record("WARN", f, msg) }
func (l *recordingLogger) Panic(map[string]any, string)       {}
func (l *recordingLogger) Fatal(map[string]any, string)       {}

func swapGlobal(t *testing.T, l Logger) {
	t.Helper()
	orig := GetLogger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(orig) })
}

func TestZapLogger_AllLevels(t *testing.T) {
	swapGlobal(t, newZapLogger(true, zapcore.DebugLevel, nil))

	Debug(map[string]any{"tab": "A1", "stage": "allowlist"}, "decision")
	Info(nil, "info")
	Warn(nil, "warn")
	Error(nil, "error")

	assert.Panics(t, func() { Panic(nil, "boom") })
}

func TestGlobalHelpers_Delegate(t *testing.T) {
	rec := &recordingLogger{}
	swapGlobal(t, rec)

	Info(map[string]any{"url": "https://example.com"}, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	assert.Equal(t, []string{"INFO:info msg", "ERROR:error msg", "DEBUG:debug msg", "WARN:warn msg"}, rec.entries)
	assert.Equal(t, "https://example.com", rec.fields[0]["url"])
}

func TestConfigure_Levels(t *testing.T) {
	swapGlobal(t, &recordingLogger{})

	require.NoError(t, Configure("dev", "debug"))
	require.NoError(t, Configure("prod", "WARN"))

	err := Configure("dev", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfigureWithFile_WritesJSON(t *testing.T) {
	swapGlobal(t, &recordingLogger{})
	path := filepath.Join(t.TempDir(), "navguard.log")

	require.NoError(t, ConfigureWithFile("prod", "info", FileOptions{Path: path}))
	Info(map[string]any{"verdict": "block"}, "navigation decided")
	Debug(nil, "filtered out by level")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"navigation decided"`)
	assert.Contains(t, string(data), `"verdict":"block"`)
	assert.NotContains(t, string(data), "filtered out by level")
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 50, orDefault(0, 50))
	assert.Equal(t, 50, orDefault(-3, 50))
	assert.Equal(t, 7, orDefault(7, 50))
}

func TestNoopLogger_DiscardsEverything(t *testing.T) {
	swapGlobal(t, NewNoopLogger())

	assert.NotPanics(t, func() {
		Debug(nil, "debug")
		Info(nil, "info")
		Warn(nil, "warn")
		Error(nil, "error")
		Panic(nil, "panic")
		Fatal(nil, "fatal")
	})
}
