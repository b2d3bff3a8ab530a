// Package feedback records clinician corrections to note statements and
// assembles them into a submission. Edits are an overlay: the generated
// statement stays immutable and the edit shadows its displayed text.
package feedback

import (
	"sort"
)

// EditType classifies a correction.
type EditType string

const (
	FactualCorrection EditType = "factual_correction"
	StyleImprovement  EditType = "style_improvement"
	Addition          EditType = "addition"
	Deletion          EditType = "deletion"
)

// Edit is one recorded correction, keyed by (section, statement index).
type Edit struct {
	Section        string   `json:"section"`
	StatementIndex int      `json:"statement_index"`
	OriginalText   string   `json:"original_text"`
	EditedText     string   `json:"edited_text"`
	EditType       EditType `json:"edit_type"`
}

// Submission is the payload sent to the backend on submit.
type Submission struct {
	SessionID           string  `json:"session_id"`
	Edits               []Edit  `json:"edits"`
	OverallSatisfaction float64 `json:"overall_satisfaction"`
	TimeSavedMinutes    float64 `json:"time_saved_minutes,omitempty"`
	Comments            string  `json:"comments,omitempty"`
}

type key struct {
	section string
	index   int
}

// Store holds the live edit overlay. At most one edit exists per
// (section, index); a later edit overwrites the prior one for that key.
type Store struct {
	edits map[key]Edit
}

func NewStore() *Store {
	return &Store{edits: make(map[key]Edit)}
}

// Record upserts an edit. originalText must be the statement's immutable
// generated text, fetched fresh by the caller rather than from a prior
// edit, so repeated edits of one statement keep the true original. An
// empty editType defaults to style_improvement. Text equal to the
// original is still recorded; there is deliberately no no-op guard.
func (s *Store) Record(section string, index int, originalText, editedText string, editType EditType) {
	if editType == "" {
		editType = StyleImprovement
	}
	s.edits[key{section, index}] = Edit{
		Section:        section,
		StatementIndex: index,
		OriginalText:   originalText,
		EditedText:     editedText,
		EditType:       editType,
	}
}

// Get returns the live edit for a key, if any.
func (s *Store) Get(section string, index int) (Edit, bool) {
	e, ok := s.edits[key{section, index}]
	return e, ok
}

// DisplayText returns the text every rendering path must show for a
// statement: the edit overlay when one exists, the original otherwise.
func (s *Store) DisplayText(section string, index int, original string) string {
	if e, ok := s.Get(section, index); ok {
		return e.EditedText
	}
	return original
}

// Len reports how many edits are live.
func (s *Store) Len() int {
	return len(s.edits)
}

// Build constructs a submission from every live edit. Edits are ordered
// by section then index so the payload is deterministic.
func (s *Store) Build(sessionID string, satisfaction, timeSaved float64, comments string) Submission {
	edits := make([]Edit, 0, len(s.edits))
	for _, e := range s.edits {
		edits = append(edits, e)
	}
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].Section != edits[j].Section {
			return edits[i].Section < edits[j].Section
		}
		return edits[i].StatementIndex < edits[j].StatementIndex
	})
	return Submission{
		SessionID:           sessionID,
		Edits:               edits,
		OverallSatisfaction: satisfaction,
		TimeSavedMinutes:    timeSaved,
		Comments:            comments,
	}
}

// Clear drops the whole overlay. Called only after a successful submit;
// a failed submit keeps the overlay so no work is lost.
func (s *Store) Clear() {
	s.edits = make(map[key]Edit)
}
