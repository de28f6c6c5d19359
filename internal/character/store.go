// Package character provides the read-only character/profile store consumed
// by the voice engine: a voice identity plus persona text per character.
package character

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/charvoice/platform/internal/errors"
)

// Character is one conversational persona.
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description"`
	Persona     string `json:"persona,omitempty"`
	VoiceName   string `json:"voiceName,omitempty"`
}

// SystemInstruction renders the persona into the instruction text sent
// verbatim in the session open payload.
func (c Character) SystemInstruction() string {
	return fmt.Sprintf("You are %s. %s. Roleplay naturally. Keep responses concise for a voice conversation.", c.Name, c.Description)
}

// Voice returns the character's voice identity, or the given default.
func (c Character) Voice(def string) string {
	if c.VoiceName != "" {
		return c.VoiceName
	}
	return def
}

// Store holds the character set. Editing happens elsewhere; this store only
// reads.
type Store struct {
	mu    sync.RWMutex
	chars []Character
	byID  map[string]int
}

// defaultCharacters seeds the store when no characters file is configured.
var defaultCharacters = []Character{
	{
		ID:          "char_1",
		Name:        "Gemini Agent",
		Role:        "Helpful Assistant",
		Description: "A capable AI assistant that can see, hear, and speak",
		Persona:     "Polite, efficient, and technically proficient. Always eager to help with complex tasks.",
		VoiceName:   "Kore",
	},
}

// NewStore creates a store seeded with the built-in characters, overridden by
// the JSON file at path when non-empty.
func NewStore(path string) (*Store, error) {
	chars := defaultCharacters
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "cannot read characters file %s", path)
		}
		var loaded []Character
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "malformed characters file")
		}
		if len(loaded) > 0 {
			chars = loaded
		}
	}

	s := &Store{chars: chars, byID: make(map[string]int, len(chars))}
	for i, c := range chars {
		if c.ID == "" {
			return nil, errors.Newf(errors.CodeInvalidConfig, "character %d has no id", i)
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, errors.Newf(errors.CodeInvalidConfig, "duplicate character id %s", c.ID)
		}
		s.byID[c.ID] = i
	}
	return s, nil
}

// Get returns the character with the given id.
func (s *Store) Get(id string) (Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Character{}, errors.Newf(errors.CodeNotFound, "unknown character %s", id)
	}
	return s.chars[i], nil
}

// List returns all characters in load order.
func (s *Store) List() []Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Character, len(s.chars))
	copy(out, s.chars)
	return out
}
