/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	defaultPackName = "CAH Base Set"
	packExt         = ".json"
)

// Pack is an immutable set of prompt and response cards. The on-disk format
// uses the historical "white"/"black" keys, with responses as {"text":...}
// objects, so the JSON shape is mapped through rawPack.
type Pack struct {
	Name      string
	Official  bool
	Prompts   []Prompt
	Responses []string
}

type rawCard struct {
	Text string `json:"text"`
}

type rawPack struct {
	Name     string    `json:"name"`
	Official bool      `json:"official"`
	White    []rawCard `json:"white"`
	Black    []Prompt  `json:"black"`
}

func (p *Pack) UnmarshalJSON(data []byte) error {
	var raw rawPack
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Name = raw.Name
	p.Official = raw.Official
	p.Prompts = raw.Black
	p.Responses = make([]string, 0, len(raw.White))
	for _, card := range raw.White {
		p.Responses = append(p.Responses, card.Text)
	}

	return nil
}

func (p Pack) MarshalJSON() ([]byte, error) {
	raw := rawPack{
		Name:     p.Name,
		Official: p.Official,
		White:    make([]rawCard, 0, len(p.Responses)),
		Black:    p.Prompts,
	}
	for _, text := range p.Responses {
		raw.White = append(raw.White, rawCard{Text: text})
	}

	return json.Marshal(raw)
}

func (p *Pack) meta() PackMeta {
	return PackMeta{
		Official:     p.Official,
		NumPrompts:   len(p.Prompts),
		NumResponses: len(p.Responses),
	}
}

type PackMeta struct {
	Official     bool
	NumPrompts   int
	NumResponses int
}

type loadedPack struct {
	pack *Pack
	refs atomic.Int32
}

// PackStore manages loading and unloading packs. It is shared by the lobby
// and every game: catalog reads and load hits take the read lock, load misses
// and mutations take the write lock.
type PackStore struct {
	packDir string

	mu      sync.RWMutex
	loaded  map[string]*loadedPack
	catalog map[string]PackMeta
}

// newPackStore scans packDir for packs and pins the default pack. An
// unreadable pack directory or a missing default pack is fatal.
func newPackStore(cfg *Config, packDir string) (*PackStore, error) {
	store := &PackStore{
		packDir: packDir,
		loaded:  make(map[string]*loadedPack),
		catalog: make(map[string]PackMeta),
	}

	if err := store.scanDir(cfg, store.officialDir(), true); err != nil {
		return nil, err
	}
	if err := store.scanDir(cfg, store.customDir(), false); err != nil {
		return nil, err
	}

	// The default pack stays loaded for the life of the process.
	if _, err := store.Load(defaultPackName); err != nil {
		return nil, fmt.Errorf("default pack: %w", err)
	}

	return store, nil
}

func (s *PackStore) scanDir(cfg *Config, dir string, official bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), packExt) {
			continue
		}

		pack, err := readPack(filepath.Join(dir, entry.Name()))
		if err != nil {
			logf(cfg, "PACKS: Skipping %s: %v", entry.Name(), err)

			continue
		}

		meta := pack.meta()
		meta.Official = official
		s.catalog[strings.TrimSuffix(entry.Name(), packExt)] = meta
	}

	return nil
}

// Load returns the shared handle for name, reading it from disk on first use.
// Every successful Load must be paired with an Unload.
func (s *PackStore) Load(name string) (*Pack, error) {
	s.mu.RLock()
	if entry, ok := s.loaded[name]; ok {
		entry.refs.Add(1)
		s.mu.RUnlock()
		return entry.pack, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.loaded[name]; ok {
		entry.refs.Add(1)
		return entry.pack, nil
	}

	meta, ok := s.catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errPackNotFound, name)
	}

	dir := s.customDir()
	if meta.Official {
		dir = s.officialDir()
	}

	pack, err := readPack(filepath.Join(dir, name+packExt))
	if err != nil {
		return nil, err
	}

	entry := &loadedPack{pack: pack}
	entry.refs.Add(1)
	s.loaded[name] = entry

	return pack, nil
}

// Unload drops one reference to name, evicting the pack once no game holds
// it. The default pack is never evicted.
func (s *PackStore) Unload(name string) {
	if name == defaultPackName {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.loaded[name]
	if !ok {
		return
	}

	if entry.refs.Add(-1) <= 0 {
		delete(s.loaded, name)
	}
}

// Create persists a custom pack and registers it in the catalog.
func (s *PackStore) Create(pack *Pack) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog[pack.Name]; ok {
		return fmt.Errorf("%w: %q", errPackExists, pack.Name)
	}

	pack.Official = false

	data, err := json.Marshal(pack)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(s.customDir(), pack.Name+packExt), data, 0644); err != nil {
		return fmt.Errorf("saving pack %q: %w", pack.Name, err)
	}

	s.catalog[pack.Name] = pack.meta()

	return nil
}

// CatalogView snapshots the catalog, sorted by pack name.
func (s *PackStore) CatalogView() []PackEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]PackEntry, 0, len(s.catalog))
	for name, meta := range s.catalog {
		entries = append(entries, PackEntry{
			Name:         name,
			NumPrompts:   meta.NumPrompts,
			NumResponses: meta.NumResponses,
		})
	}

	slices.SortFunc(entries, func(a, b PackEntry) int {
		return strings.Compare(a.Name, b.Name)
	})

	return entries
}

// loadedCount reports how many packs are resident, for tests and logging.
func (s *PackStore) loadedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.loaded)
}

func (s *PackStore) isLoaded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.loaded[name]

	return ok
}

func readPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pack file: %w", err)
	}

	pack := &Pack{}
	if err := json.Unmarshal(data, pack); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errPackCorrupt, filepath.Base(path), err)
	}

	return pack, nil
}

func (s *PackStore) officialDir() string {
	return filepath.Join(s.packDir, "official")
}

func (s *PackStore) customDir() string {
	return filepath.Join(s.packDir, "custom")
}
