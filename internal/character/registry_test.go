package character

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCharacter(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0644))
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	writeCharacter(t, dir, "mira.yaml", `
name: Mira
mode: story
greeting: "Shall we pick up where we left off?"
system_prompt: "You are Mira, a storyteller."
`)
	writeCharacter(t, dir, "juno.yml", `
name: Juno
mode: advice
system_prompt: "You are Juno."
`)
	writeCharacter(t, dir, "notes.txt", "not a character")

	r, err := LoadRegistry(dir)
	require.NoError(t, err)
	assert.Len(t, r.All(), 2)

	mira, ok := r.Get("MIRA")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, "story", mira.Mode)
	assert.NotEmpty(t, mira.ID, "missing id gets generated")

	juno, _ := r.Get("juno")
	assert.Equal(t, "advice", juno.Mode)
}

func TestLoadRegistry_MissingDir(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, r.All())

	def := r.Default()
	assert.NotEmpty(t, def.Name)
	assert.NotEmpty(t, def.SystemPrompt)
}

func TestRegistry_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeCharacter(t, dir, "broken.yaml", "::: not yaml :::")
	writeCharacter(t, dir, "nameless.yaml", "mode: story")
	writeCharacter(t, dir, "ok.yaml", "name: Okay")

	r, err := LoadRegistry(dir)
	require.NoError(t, err)
	require.Len(t, r.All(), 1)
	assert.Equal(t, "Okay", r.All()[0].Name)
	assert.Equal(t, "companion", r.All()[0].Mode, "mode defaults")
}

func TestRegistry_Reload(t *testing.T) {
	dir := t.TempDir()
	writeCharacter(t, dir, "a.yaml", "name: Alpha")

	r, err := LoadRegistry(dir)
	require.NoError(t, err)
	require.Len(t, r.All(), 1)

	writeCharacter(t, dir, "b.yaml", "name: Beta")
	require.NoError(t, r.Reload())
	assert.Len(t, r.All(), 2)

	_, ok := r.Get("beta")
	assert.True(t, ok)
}

func TestRegistry_DefaultPrefersLoaded(t *testing.T) {
	dir := t.TempDir()
	writeCharacter(t, dir, "z.yaml", "name: Zed")
	writeCharacter(t, dir, "a.yaml", "name: Ada")

	r, err := LoadRegistry(dir)
	require.NoError(t, err)
	assert.Equal(t, "Ada", r.Default().Name, "first by name")
}
