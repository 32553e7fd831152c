// Package citation detects brand mentions in provider answer text. Detection
// is pure string work: case-insensitive substring matching over the brand
// name and aliases, with the containing sentences captured verbatim.
package citation

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Detector matches one brand identity against answer text. Build it once per
// run; Detect is safe for concurrent use.
type Detector struct {
	brand   model.BrandIdentity
	pattern *regexp.Regexp
}

// NewDetector compiles the detection pattern for a brand. Every term is
// quoted literally, so brand names containing regex metacharacters ("C++",
// "AT&T") match as written.
func NewDetector(brand model.BrandIdentity) (*Detector, error) {
	terms := brand.Terms()
	if len(terms) == 0 {
		return nil, eris.New("citation: brand has no terms to detect")
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	pattern, err := regexp.Compile(`(?i)` + strings.Join(quoted, "|"))
	if err != nil {
		return nil, eris.Wrap(err, "citation: compile detection pattern")
	}

	return &Detector{brand: brand, pattern: pattern}, nil
}

// Detect returns the citation record for one answer text: whether any brand
// term appears, how many non-overlapping mentions there are, and the
// distinct sentences containing a mention, verbatim and in order of first
// appearance.
func (d *Detector) Detect(text string) model.CitationRecord {
	if text == "" {
		return model.CitationRecord{}
	}

	mentions := d.pattern.FindAllStringIndex(text, -1)
	if len(mentions) == 0 {
		return model.CitationRecord{}
	}

	record := model.CitationRecord{
		Cited:        true,
		MentionCount: len(mentions),
	}

	seen := make(map[string]bool)
	for _, sentence := range splitSentences(text) {
		if !d.pattern.MatchString(sentence) {
			continue
		}
		if seen[sentence] {
			continue
		}
		seen[sentence] = true
		record.Sentences = append(record.Sentences, sentence)
	}
	return record
}

// splitSentences breaks text on sentence-ending punctuation, keeping the
// punctuation with its sentence. Whitespace-only fragments are dropped.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return sentences
}
