package model

import "strings"

// Passage is one retrieved snippet of brand content with its provenance.
type Passage struct {
	Content  string  `json:"content"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
	Degraded bool    `json:"degraded,omitempty"` // content fetch failed, bare reference kept
}

// ContextBundle is the retrieved context for one query. It is created once
// per query at retrieval time; a retried attempt replaces the bundle, it
// never appends to it.
type ContextBundle struct {
	Query    Query     `json:"query"`
	Passages []Passage `json:"passages"`
	Failed   bool      `json:"failed,omitempty"`
	Err      string    `json:"error,omitempty"`
}

// Text renders the bundle's passages as a single prompt context block.
func (b ContextBundle) Text() string {
	if len(b.Passages) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range b.Passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Content)
		if p.Source != "" {
			sb.WriteString("\n(source: ")
			sb.WriteString(p.Source)
			sb.WriteString(")")
		}
	}
	return sb.String()
}
