package checklist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "checklist.yaml")
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(tempPath(t))
	require.NoError(t, err)
	_, ok := c.Get("fcst")
	assert.False(t, ok)
}

func TestUpdateMergesMappings(t *testing.T) {
	path := tempPath(t)
	c := New(path)
	require.NoError(t, c.Update("fcst", map[string]interface{}{"a": 1}))
	require.NoError(t, c.Update("fcst", map[string]interface{}{"b": 2}))

	v, ok := c.Get("fcst")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, v)

	reloaded, err := Load(path)
	require.NoError(t, err)
	rv, ok := reloaded.Get("fcst")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, rv)
}

func TestUpdateOverwritesNonMapping(t *testing.T) {
	path := tempPath(t)
	c := New(path)
	require.NoError(t, c.Update("weather", "sunny"))
	require.NoError(t, c.Update("weather", "rainy"))

	v, ok := c.Get("weather")
	require.True(t, ok)
	assert.Equal(t, "rainy", v)
}

func TestClearIsNoOpOnEmptyChecklist(t *testing.T) {
	path := tempPath(t)
	c := New(path)
	require.NoError(t, c.Clear())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Snapshot())

	require.NoError(t, c.Clear())
	data2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}
