package model

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// BrandIdentity names the brand being audited plus any aliases that count
// as a mention (abbreviations, product lines, legacy names).
type BrandIdentity struct {
	Name    string   `json:"name" yaml:"name"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`
}

// Validate checks the brand has a usable name.
func (b BrandIdentity) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return eris.New("brand: name is required")
	}
	return nil
}

// Terms returns the brand name followed by its non-empty aliases.
func (b BrandIdentity) Terms() []string {
	terms := []string{b.Name}
	for _, a := range b.Aliases {
		if strings.TrimSpace(a) != "" {
			terms = append(terms, a)
		}
	}
	return terms
}

var (
	namespaceStrip    = regexp.MustCompile(`[^a-z0-9\s\-]`)
	namespaceSpaces   = regexp.MustCompile(`\s+`)
	namespaceHyphens  = regexp.MustCompile(`-+`)
	namespaceMaxChars = 50
)

// Namespace derives the content-index namespace for this brand: lowercase,
// specials stripped, spaces hyphenated, truncated to 50 chars with a
// "brand-" prefix. Deterministic for a given name.
func (b BrandIdentity) Namespace() string {
	s := strings.ToLower(b.Name)
	s = namespaceStrip.ReplaceAllString(s, "")
	s = strings.TrimSpace(namespaceSpaces.ReplaceAllString(s, " "))
	s = strings.ReplaceAll(s, " ", "-")
	s = namespaceHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	maxLen := namespaceMaxChars - len("brand-")
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = "unknown"
	}
	return "brand-" + s
}
