// Package prompt owns the system prompt templates and the substitution
// applied to them before generation. Templates use {name} placeholders;
// every prompt is rendered through Render before it reaches the backend.
package prompt

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ormelin/croupier/internal/persona"
)

//go:embed defaults/*.txt
var defaultTemplates embed.FS

// DefaultNoPromotions is injected for the {promotions} placeholder when no
// promotions file is available.
const DefaultNoPromotions = "No active promotions at the moment."

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Render substitutes {name} placeholders in the template with the given
// bindings. Unbound placeholders are removed, and any line left blank by the
// removal is dropped so the prompt never shows an empty section.
func Render(template string, bindings map[string]string) string {
	lines := strings.Split(template, "\n")
	kept := lines[:0]
	for _, line := range lines {
		removed := false
		rendered := placeholderRe.ReplaceAllStringFunc(line, func(match string) string {
			key := match[1 : len(match)-1]
			if v, ok := bindings[key]; ok {
				return v
			}
			removed = true
			return ""
		})
		// A line reduced to whitespace by placeholder removal is dropped;
		// blank lines the template had on its own are kept.
		if removed && strings.TrimSpace(rendered) == "" {
			continue
		}
		kept = append(kept, rendered)
	}
	return strings.Join(kept, "\n")
}

// Library resolves persona system prompt templates, preferring files in the
// configured directory over the embedded defaults. Files are named
// system_<persona>.txt.
type Library struct {
	dir            string
	promotionsFile string
	logger         *slog.Logger
}

// NewLibrary creates a prompt library. An empty dir uses only the embedded
// templates.
func NewLibrary(dir, promotionsFile string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{dir: dir, promotionsFile: promotionsFile, logger: logger}
}

// System returns the rendered system prompt for the persona, with the
// current promotions and the retrieved knowledge context substituted in.
func (l *Library) System(p persona.Persona, knowledgeContext string) string {
	template := l.template(p)
	return Render(template, map[string]string{
		"promotions": l.Promotions(),
		"context":    knowledgeContext,
	})
}

// template returns the raw system prompt template for the persona.
func (l *Library) template(p persona.Persona) string {
	if !p.Valid() {
		p = persona.Default
	}
	name := fmt.Sprintf("system_%s.txt", p)

	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, name))
		if err == nil {
			return string(data)
		}
		if !os.IsNotExist(err) {
			l.logger.Warn("reading prompt template, falling back to default",
				"persona", p, "error", err)
		}
	}

	data, err := defaultTemplates.ReadFile("defaults/" + name)
	if err != nil {
		// Every valid persona has an embedded default; this only trips if
		// the embed set and the persona enumeration drift apart.
		l.logger.Error("missing embedded prompt template", "persona", p)
		return ""
	}
	return string(data)
}

// Promotions returns the current promotions text, or the default filler when
// the promotions file is missing or blank.
func (l *Library) Promotions() string {
	if l.promotionsFile == "" {
		return DefaultNoPromotions
	}
	data, err := os.ReadFile(l.promotionsFile)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("reading promotions file", "error", err)
		}
		return DefaultNoPromotions
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return DefaultNoPromotions
	}
	return text
}
