package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *PackStore {
	t.Helper()

	cfg := &Config{}
	store, err := newPackStore(cfg, newTestPackDir(t))
	require.NoError(t, err)

	return store
}

func TestPackStoreScan(t *testing.T) {
	store := newTestStore(t)

	view := store.CatalogView()
	require.Len(t, view, 3)

	// Sorted by name.
	assert.Equal(t, "CAH Base Set", view[0].Name)
	assert.Equal(t, "Expansion One", view[1].Name)
	assert.Equal(t, "Inside Jokes", view[2].Name)

	assert.Equal(t, 12, view[0].NumPrompts)
	assert.Equal(t, 80, view[0].NumResponses)

	// Only the pinned default pack is resident after boot.
	assert.Equal(t, 1, store.loadedCount())
	assert.True(t, store.isLoaded(defaultPackName))
}

func TestPackStoreMissingDefaultPack(t *testing.T) {
	packDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(packDir, "official"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(packDir, "custom"), 0755))

	_, err := newPackStore(&Config{}, packDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errPackNotFound)
}

func TestPackStoreMissingPackDir(t *testing.T) {
	_, err := newPackStore(&Config{}, filepath.Join(t.TempDir(), "nonexistent"))
	assert.Error(t, err)
}

func TestPackStoreSkipsCorruptPackAtBoot(t *testing.T) {
	packDir := newTestPackDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "custom", "Broken.json"), []byte("{"), 0644))

	store, err := newPackStore(&Config{}, packDir)
	require.NoError(t, err)

	for _, entry := range store.CatalogView() {
		assert.NotEqual(t, "Broken", entry.Name)
	}
}

func TestPackStoreLoadUnload(t *testing.T) {
	store := newTestStore(t)

	pack, err := store.Load("Expansion One")
	require.NoError(t, err)
	assert.Equal(t, "Expansion One", pack.Name)
	assert.True(t, store.isLoaded("Expansion One"))

	// A load hit returns the same shared handle.
	again, err := store.Load("Expansion One")
	require.NoError(t, err)
	assert.Same(t, pack, again)

	// Two references: the first unload keeps the pack resident.
	store.Unload("Expansion One")
	assert.True(t, store.isLoaded("Expansion One"))

	store.Unload("Expansion One")
	assert.False(t, store.isLoaded("Expansion One"))
}

func TestPackStoreLoadCustomPack(t *testing.T) {
	store := newTestStore(t)

	pack, err := store.Load("Inside Jokes")
	require.NoError(t, err)
	assert.False(t, pack.Official)
	assert.Len(t, pack.Responses, 12)
}

func TestPackStoreLoadUnknownPack(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("No Such Pack")
	assert.ErrorIs(t, err, errPackNotFound)
}

func TestPackStoreLoadCorruptPack(t *testing.T) {
	packDir := newTestPackDir(t)
	store, err := newPackStore(&Config{}, packDir)
	require.NoError(t, err)

	// Corrupt the file after the catalog scan so Load trips over it.
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "custom", "Inside Jokes.json"), []byte("{"), 0644))

	_, err = store.Load("Inside Jokes")
	assert.ErrorIs(t, err, errPackCorrupt)
}

func TestPackStoreNeverUnloadsDefaultPack(t *testing.T) {
	store := newTestStore(t)

	for range 3 {
		store.Unload(defaultPackName)
	}

	assert.True(t, store.isLoaded(defaultPackName))
}

func TestPackStoreCreate(t *testing.T) {
	store := newTestStore(t)

	pack := &Pack{
		Name:      "House Rules",
		Official:  true, // forced to false on create
		Prompts:   []Prompt{{Text: "what?", Pick: 1}},
		Responses: []string{"this", "that"},
	}
	require.NoError(t, store.Create(pack))

	loaded, err := store.Load("House Rules")
	require.NoError(t, err)
	assert.False(t, loaded.Official)
	assert.Equal(t, []string{"this", "that"}, loaded.Responses)

	// Name collisions are rejected, including against existing packs.
	assert.ErrorIs(t, store.Create(&Pack{Name: "House Rules"}), errPackExists)
	assert.ErrorIs(t, store.Create(&Pack{Name: defaultPackName}), errPackExists)
}

func TestPackRoundTripKeepsHistoricalKeys(t *testing.T) {
	packDir := newTestPackDir(t)

	data, err := os.ReadFile(filepath.Join(packDir, "official", defaultPackName+packExt))
	require.NoError(t, err)

	// The wire format must keep "white" as {"text":...} objects and "black"
	// as prompt objects.
	assert.Contains(t, string(data), `"white":[{"text":`)
	assert.Contains(t, string(data), `"black":[{"text":`)
	assert.Contains(t, string(data), `"pick":1`)
}
