package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	out, err := c.Render("error.illegal_move", map[string]any{"Move": "e2e5"})
	require.NoError(t, err)
	assert.Equal(t, "Illegal move e2e5.", out)

	_, err = c.Render("error.illegal_move", map[string]any{})
	assert.Error(t, err, "missing template field must fail")

	assert.Equal(t, "fallback", c.Text("error.nope", nil, "fallback"))
}

func TestOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("error:\n  internal: \"boom\"\n"), 0o644))

	c, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "boom", c.Text("error.internal", nil, ""))
	assert.Equal(t, "It is not your turn.", c.Text("error.out_of_turn", nil, ""))
}

func TestOverrideDuplicateKeysRejected(t *testing.T) {
	dir := t.TempDir()
	body := []byte("error:\n  internal: \"x\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o644))

	_, err := New(dir)
	assert.Error(t, err)
}
