package persona

import (
	"errors"
	"testing"
)

func TestValid(t *testing.T) {
	for _, p := range All() {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if Persona("pirate").Valid() {
		t.Error("pirate should not be valid")
	}
	if Persona("").Valid() {
		t.Error("empty persona should not be valid")
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("bella")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p != Bella {
		t.Errorf("got %q, want bella", p)
	}

	if _, err := Parse("Bella"); !errors.Is(err, ErrUnknown) {
		t.Errorf("case-sensitive parse: got %v, want ErrUnknown", err)
	}
	if _, err := Parse(""); !errors.Is(err, ErrUnknown) {
		t.Errorf("empty parse: got %v, want ErrUnknown", err)
	}
}

func TestDefault(t *testing.T) {
	if Default != Business {
		t.Errorf("default persona: got %q, want business", Default)
	}
}
