// Package soap models the structured clinical note returned at session
// completion and resolves each statement's citations back to the literal
// transcript text that supports it.
package soap

import (
	"regexp"
	"strings"
)

// Statement is one assertion in a generated note. SourceSegments cites
// transcript segments by 1-based ordinal.
type Statement struct {
	Statement      string  `json:"statement"`
	Confidence     float64 `json:"confidence"`
	SourceSegments []int   `json:"source_segments"`
	SourceText     string  `json:"source_text,omitempty"`
}

// Note is the complete result: the raw note text plus the structured
// sections. Sections map a section name to its ordered statements.
type Note struct {
	Text     string                 `json:"soap_note"`
	Sections map[string][]Statement `json:"soap_sections"`
}

// SectionNames is the canonical display order for note sections. Sections
// not listed here render after these, in map iteration order.
var SectionNames = []string{"subjective", "objective", "assessment", "plan"}

// Statement returns the statement at index in the named section, or false
// when the section or index does not exist.
func (n *Note) Statement(section string, index int) (Statement, bool) {
	stmts, ok := n.Sections[section]
	if !ok || index < 0 || index >= len(stmts) {
		return Statement{}, false
	}
	return stmts[index], true
}

// HoveredSource is the transient view-state shown while a statement is
// under focus. It is derived on demand and never persisted.
type HoveredSource struct {
	Statement      string
	SourceText     string
	Confidence     float64
	SourceSegments []int
}

// ResolveSource joins the cited segments' text with a fixed separator.
// Ordinals are 1-based; ordinals with no matching segment are silently
// dropped, so an entirely out-of-range citation yields an empty excerpt.
func ResolveSource(segments []string, refs []int) string {
	var cited []string
	for _, ref := range refs {
		if ref < 1 || ref > len(segments) {
			continue
		}
		cited = append(cited, segments[ref-1])
	}
	return strings.Join(cited, " ... ")
}

// Hover builds the source view for one statement against the segment list.
func Hover(stmt Statement, segments []string) HoveredSource {
	return HoveredSource{
		Statement:      stmt.Statement,
		SourceText:     ResolveSource(segments, stmt.SourceSegments),
		Confidence:     stmt.Confidence,
		SourceSegments: stmt.SourceSegments,
	}
}

// Highlight wraps every case-insensitive literal occurrence of each cited
// segment's text inside transcript with the given marker. Matching is by
// literal text, not stored offsets: a cited segment whose text repeats
// elsewhere highlights all occurrences, and when cited segments overlap in
// the raw string the segment processed later wraps the result of the
// earlier one (last-applied wins).
func Highlight(transcript string, segments []string, refs []int, wrap func(string) string) string {
	out := transcript
	for _, ref := range refs {
		if ref < 1 || ref > len(segments) {
			continue
		}
		text := strings.TrimSpace(segments[ref-1])
		if text == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(text))
		if err != nil {
			continue
		}
		out = re.ReplaceAllStringFunc(out, wrap)
	}
	return out
}

// SegmentRow is one entry of the segmented list view.
type SegmentRow struct {
	Ordinal int
	Text    string
	Cited   bool
}

// SegmentRows renders the full segment list as numbered rows, marking the
// rows whose 1-based ordinal appears in refs.
func SegmentRows(segments []string, refs []int) []SegmentRow {
	cited := make(map[int]bool, len(refs))
	for _, ref := range refs {
		cited[ref] = true
	}
	rows := make([]SegmentRow, len(segments))
	for i, text := range segments {
		rows[i] = SegmentRow{
			Ordinal: i + 1,
			Text:    text,
			Cited:   cited[i+1],
		}
	}
	return rows
}
