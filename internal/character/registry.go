// Package character loads persona definitions from yaml files and keeps them
// fresh while the app runs. A character supplies the system prompt, greeting,
// and conversation mode for the sessions it fronts.
package character

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"reverie/internal/logging"
)

// Character is one persona definition.
type Character struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Mode         string `yaml:"mode"` // conversation type: story, advice, companion...
	Greeting     string `yaml:"greeting"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Registry holds the loaded characters, keyed by lowercase name.
type Registry struct {
	mu    sync.RWMutex
	dir   string
	byKey map[string]Character
}

// LoadRegistry reads every *.yaml/*.yml file in dir. A missing dir yields an
// empty registry rather than an error; the built-in default still works.
func LoadRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir, byKey: make(map[string]Character)}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the characters dir, replacing the in-memory set.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read characters dir: %w", err)
	}

	loaded := make(map[string]Character)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		c, err := loadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			logging.Get(logging.CategorySession).Warn("skipping character file %s: %v", entry.Name(), err)
			continue
		}
		loaded[strings.ToLower(c.Name)] = c
	}

	r.mu.Lock()
	r.byKey = loaded
	r.mu.Unlock()
	logging.Get(logging.CategorySession).Info("loaded %d characters from %s", len(loaded), r.dir)
	return nil
}

func loadFile(path string) (Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Character{}, err
	}
	var c Character
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Character{}, fmt.Errorf("invalid yaml: %w", err)
	}
	if c.Name == "" {
		return Character{}, fmt.Errorf("character has no name")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Mode == "" {
		c.Mode = "companion"
	}
	return c, nil
}

// Get looks a character up by name, case-insensitive.
func (r *Registry) Get(name string) (Character, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[strings.ToLower(name)]
	return c, ok
}

// Default returns the character to use when none was requested: the first by
// name, or a built-in companion when the dir is empty.
func (r *Registry) Default() Character {
	all := r.All()
	if len(all) > 0 {
		return all[0]
	}
	return Character{
		ID:           "builtin-ember",
		Name:         "Ember",
		Mode:         "companion",
		Greeting:     "Hey. What's on your mind today?",
		SystemPrompt: "You are Ember, a warm, curious companion. Keep replies conversational and grounded.",
	}
}

// All returns the loaded characters sorted by name.
func (r *Registry) All() []Character {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Character, 0, len(r.byKey))
	for _, c := range r.byKey {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}
