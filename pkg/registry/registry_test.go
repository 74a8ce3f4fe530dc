package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg := Default()

	assert.Len(t, reg.TaskTypes(), 7)
	a, ok := reg.Find("generate-strategy")
	require.True(t, ok)
	assert.Equal(t, "DIRECTOR", a.Agent)

	_, ok = reg.Find("publish-landing-page")
	assert.False(t, ok)
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"version":"2","activities":[{"taskType":"render-assets","category":"render"}]}`), 0o600))
	reg, err := LoadRegistry(good)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)
	assert.Equal(t, []string{"render-assets"}, reg.TaskTypes())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"activities":`), 0o600))
	_, err = LoadRegistry(bad)
	assert.Error(t, err)

	_, err = LoadRegistry(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
