// Package persona defines the behavioral profiles the support agent can
// assume. A persona governs which system prompt is used for generation; it is
// selected explicitly per conversation and persists until changed.
package persona

import (
	"errors"
	"fmt"
)

// ErrUnknown indicates a string that names no known persona.
var ErrUnknown = errors.New("unknown persona")

// Persona identifies a behavioral/style profile.
type Persona string

const (
	// Business is the strict, professional support mode. It is the default
	// for every new conversation.
	Business Persona = "business"

	// Bella is the friendly female persona with a light informal tone.
	Bella Persona = "bella"

	// Ben is the confident male persona with a buddy-like tone.
	Ben Persona = "ben"
)

// Default is the persona assigned on first contact.
const Default = Business

// All lists every known persona, in display order.
func All() []Persona {
	return []Persona{Business, Bella, Ben}
}

// Valid reports whether p is one of the known personas.
func (p Persona) Valid() bool {
	switch p {
	case Business, Bella, Ben:
		return true
	}
	return false
}

func (p Persona) String() string {
	return string(p)
}

// Parse converts a raw string into a Persona.
func Parse(s string) (Persona, error) {
	p := Persona(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return p, nil
}
