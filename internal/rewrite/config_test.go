package rewrite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadChainsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `
gadget:
  - templates
  - style-script
pre-cache:
  - optimizer
post-cache: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadChainsFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"templates", "style-script"}, cfg.Gadget)
	assert.Equal(t, []string{"optimizer"}, cfg.PreCache)
	assert.Empty(t, cfg.PostCache)
}

func TestLoadChainsFile_Missing(t *testing.T) {
	_, err := LoadChainsFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadChainsFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gadget: {not: [a, list"), 0o600))

	_, err := LoadChainsFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing chain file")
}

func TestStageSet_ComposesConfiguredChain(t *testing.T) {
	set := NewStageSet()
	set.AddResponse(appendStage("one", "-1"))
	set.AddResponse(appendStage("two", "-2"))

	chain, err := set.ResponseChain(RolePreCache, []string{"two", "one"})
	require.NoError(t, err)
	assert.Equal(t, 2, chain.Len())

	// composition order is execution order
	out, failures := Run(context.Background(), chain, body("x"))
	assert.Empty(t, failures)
	assert.Equal(t, "x-2-1", string(out.Body))
}

func TestStageSet_UnknownStageIsError(t *testing.T) {
	set := NewStageSet()
	set.AddResponse(appendStage("known", "-k"))

	_, err := set.ResponseChain(RolePreCache, []string{"known", "mystery"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown rewriter stage "mystery"`)
}

func TestDefaultChainsConfig(t *testing.T) {
	cfg := DefaultChainsConfig()

	assert.Equal(t, []string{"templates", "style-script", "i18n"}, cfg.Gadget)
	assert.Equal(t, []string{"strip-headers"}, cfg.PreCache)
	assert.Equal(t, []string{"via"}, cfg.PostCache)
}
