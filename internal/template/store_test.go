package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeLibrary(t *testing.T, uri, doc string) *Library {
	t.Helper()
	lib, err := LoadLibrary(uri, strings.NewReader(doc))
	require.NoError(t, err)
	return lib
}

const osmlDoc = `
<Templates xmlns:os="http://example.org/ns">
  <Namespace prefix="os" url="http://example.org/ns"/>
  <Template tag="os:Panel"><div class="panel"/></Template>
</Templates>`

func TestStoreHandlerFor(t *testing.T) {
	store := NewStore()
	store.Update(storeLibrary(t, "lib/osml.xml", osmlDoc))

	h, ok := store.HandlerFor("os", "panel")
	require.True(t, ok)
	assert.Equal(t, `<div class="panel"/>`, h.Expand())

	_, ok = store.HandlerFor("os", "unknown")
	assert.False(t, ok)

	_, ok = store.HandlerFor("other", "panel")
	assert.False(t, ok)
}

func TestStoreUpdate_ReplacesByURI(t *testing.T) {
	store := NewStore()
	store.Update(storeLibrary(t, "lib/osml.xml", osmlDoc))

	replacement := `
<Templates xmlns:os="http://example.org/ns">
  <Namespace prefix="os" url="http://example.org/ns"/>
  <Template tag="os:Panel"><span class="panel-v2"/></Template>
</Templates>`
	store.Update(storeLibrary(t, "lib/osml.xml", replacement))

	require.Len(t, store.Libraries(), 1)

	h, ok := store.HandlerFor("os", "panel")
	require.True(t, ok)
	assert.Equal(t, `<span class="panel-v2"/>`, h.Expand())
}

func TestLoadAll_SkipsBrokenLibraries(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.xml")
	require.NoError(t, os.WriteFile(good, []byte(osmlDoc), 0o600))

	broken := filepath.Join(dir, "broken.xml")
	require.NoError(t, os.WriteFile(broken, []byte(`<Templates><Namespace/></Templates>`), 0o600))

	store := NewStore()
	LoadAll(store, []string{good, broken})

	// the broken library contributes zero tags; the good one still loads
	assert.Len(t, store.Libraries(), 1)
	_, ok := store.HandlerFor("os", "panel")
	assert.True(t, ok)
}
