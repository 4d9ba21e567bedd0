package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)

	require.NoError(t, v.Save("token-abc-123"))

	got, err := v.Load()
	require.NoError(t, err)
	assert.Equal(t, "token-abc-123", got)

	key, err := os.ReadFile(filepath.Join(dir, KeyFile))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	sealed, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "token-abc-123")
}

func TestSave_ReusesKey(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)

	require.NoError(t, v.Save("first"))
	key1, err := os.ReadFile(filepath.Join(dir, KeyFile))
	require.NoError(t, err)

	require.NoError(t, v.Save("second"))
	key2, err := os.ReadFile(filepath.Join(dir, KeyFile))
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	got, err := New(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestLoad_NothingSaved(t *testing.T) {
	_, err := New(t.TempDir()).Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestLoad_WrongKey(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)
	require.NoError(t, v.Save("token"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFile), make([]byte, 32), 0o600))

	_, err := v.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_Truncated(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)
	require.NoError(t, v.Save("token"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("short"), 0o600))

	_, err := v.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)
	require.NoError(t, v.Save("token"))

	require.NoError(t, v.Clear())
	require.NoError(t, v.Clear())

	_, err := v.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}
