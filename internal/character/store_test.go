package character

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charvoice/platform/internal/errors"
)

func TestDefaultSeed(t *testing.T) {
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	chars := s.List()
	if len(chars) == 0 {
		t.Fatal("no default characters seeded")
	}

	c, err := s.Get("char_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Name != "Gemini Agent" {
		t.Errorf("name = %q", c.Name)
	}
}

func TestSystemInstruction(t *testing.T) {
	c := Character{Name: "Aria", Description: "A moody jazz singer from New Orleans"}
	got := c.SystemInstruction()
	want := "You are Aria. A moody jazz singer from New Orleans. Roleplay naturally. Keep responses concise for a voice conversation."
	if got != want {
		t.Errorf("SystemInstruction() = %q, want %q", got, want)
	}
}

func TestVoiceFallback(t *testing.T) {
	if got := (Character{VoiceName: "Puck"}).Voice("Kore"); got != "Puck" {
		t.Errorf("Voice = %q, want Puck", got)
	}
	if got := (Character{}).Voice("Kore"); got != "Kore" {
		t.Errorf("Voice = %q, want default Kore", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.json")
	content := `[
		{"id": "aria", "name": "Aria", "description": "A singer", "voiceName": "Aoede"},
		{"id": "rex", "name": "Rex", "description": "A detective"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if len(s.List()) != 2 {
		t.Fatalf("got %d characters, want 2", len(s.List()))
	}
	c, err := s.Get("aria")
	if err != nil {
		t.Fatal(err)
	}
	if c.VoiceName != "Aoede" {
		t.Errorf("voice = %q", c.VoiceName)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewStore(filepath.Join(t.TempDir(), "nope.json"))
		if !errors.IsCode(err, errors.CodeInvalidConfig) {
			t.Errorf("err = %v, want INVALID_CONFIG", err)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := NewStore(path)
		if !errors.IsCode(err, errors.CodeInvalidConfig) {
			t.Errorf("err = %v, want INVALID_CONFIG", err)
		}
	})

	t.Run("duplicate ids", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dup.json")
		content := `[{"id":"a","name":"A","description":"x"},{"id":"a","name":"B","description":"y"}]`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := NewStore(path)
		if !errors.IsCode(err, errors.CodeInvalidConfig) {
			t.Errorf("err = %v, want INVALID_CONFIG", err)
		}
	})
}

func TestGetUnknown(t *testing.T) {
	s, err := NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Get("ghost")
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
