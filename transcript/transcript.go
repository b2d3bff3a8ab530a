// Package transcript assembles the live transcript for a session: the
// append-only chunk sequence shown while recording, the single replaceable
// interim string, and the immutable final transcript plus its numbered
// segments set once at completion.
package transcript

import (
	"time"
)

// Chunk is one committed fragment of interim speech. The sequence is
// append-only and never reordered or merged after insertion.
type Chunk struct {
	Text      string
	Timestamp time.Time
	ID        int64
}

// State holds every transcript view for one session. It is a plain value
// so the owner can reset all views at once by replacing the whole struct;
// resetting fields individually is what this type exists to prevent.
type State struct {
	Chunks   []Chunk
	Interim  string
	Final    string
	Segments []string

	nextID int64
}

// AppendInterim records one interim transcript_update: the new text is
// appended as a chunk in receipt order and becomes the current interim
// string. Empty text is ignored.
func (s *State) AppendInterim(text string) {
	if text == "" {
		return
	}
	s.nextID++
	s.Chunks = append(s.Chunks, Chunk{
		Text:      text,
		Timestamp: time.Now(),
		ID:        s.nextID,
	})
	s.Interim = text
}

// SetFinal commits the full transcript and clears the interim string.
// The final transcript is exactly the carried full_transcript, empty
// string when the message omitted it.
func (s *State) SetFinal(full string) {
	s.Final = full
	s.Interim = ""
}

// Complete sets the final transcript and the segment sequence together
// from one completion (or session reload) event. The two are never set
// independently.
func (s *State) Complete(transcript string, segments []string) {
	s.SetFinal(transcript)
	s.Segments = segments
}

// Display is the text shown to the user: while interim speech is pending
// it is the final transcript, a single space, and the interim string; once
// the interim is cleared it is the final transcript alone.
func (s *State) Display() string {
	if s.Interim == "" {
		return s.Final
	}
	return s.Final + " " + s.Interim
}
