package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGeneratesDefaultWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "pylicator.conf")

	doc, generated, err := Load(confPath)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Nil(t, doc)

	content, err := os.ReadFile(confPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[settings]")
	assert.Contains(t, string(content), "[forwarding_rules]")
}

func TestLoadRoundTripsDefaults(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "pylicator.conf")

	_, generated, err := Load(confPath)
	require.NoError(t, err)
	require.True(t, generated)

	doc, generated, err := Load(confPath)
	require.NoError(t, err)
	require.False(t, generated)
	require.NotNil(t, doc)

	assert.Equal(t, DefaultListenPort, doc.Settings.ListenPort)
	assert.False(t, doc.Settings.LogTraps)
	assert.False(t, doc.Settings.LogBytes)
	assert.False(t, doc.Settings.SpoofSrc)
	assert.Empty(t, doc.Rules)
}

func TestLoadParsesForwardingRules(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "pylicator.conf")
	content := `[settings]
listen_port = 1162
log_traps = true
log_bytes = false
spoof_src = false

[forwarding_rules]
10.0.0.0/24 = 127.0.0.1:1 127.0.0.1:2
172.16.0.0/16 = 127.0.0.1:3
`
	require.NoError(t, os.WriteFile(confPath, []byte(content), 0o644))

	doc, generated, err := Load(confPath)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, 1162, doc.Settings.ListenPort)
	assert.True(t, doc.Settings.LogTraps)
	require.Len(t, doc.Rules, 2)
	assert.Equal(t, [2]string{"10.0.0.0/24", "127.0.0.1:1 127.0.0.1:2"}, doc.Rules[0])
}

func TestLoadRejectsDuplicateOrigin(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "pylicator.conf")
	content := `[settings]
listen_port = 162

[forwarding_rules]
10.0.0.0/24 = 127.0.0.1:1
10.0.0.0/24 = 127.0.0.1:2
`
	require.NoError(t, os.WriteFile(confPath, []byte(content), 0o644))

	_, _, err := Load(confPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestResolveConfPathDirectoryAppendsDefault(t *testing.T) {
	dir := t.TempDir()
	resolved, err := ResolveConfPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigFilename), resolved)
}

func TestResolveConfPathEmptyUsesDefault(t *testing.T) {
	resolved, err := ResolveConfPath("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigFilename, resolved)
}

func TestResolveLogPathEmptyUsesDefault(t *testing.T) {
	resolved, warning := ResolveLogPath("", "default.log")
	assert.Equal(t, "default.log", resolved)
	assert.Empty(t, warning)
}

func TestResolveLogPathExistingDirectoryAppendsDefault(t *testing.T) {
	dir := t.TempDir()
	resolved, warning := ResolveLogPath(dir, "default.log")
	assert.Equal(t, filepath.Join(dir, "default.log"), resolved)
	assert.Empty(t, warning)
}

func TestResolveLogPathParentExistsUsesAsIs(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "new.log")
	resolved, warning := ResolveLogPath(target, "default.log")
	assert.Equal(t, target, resolved)
	assert.Empty(t, warning)
}

func TestResolveLogPathUnusableFallsBackWithWarning(t *testing.T) {
	resolved, warning := ResolveLogPath("/no/such/parent/dir/file.log", "default.log")
	assert.Equal(t, "default.log", resolved)
	assert.NotEmpty(t, warning)
}
