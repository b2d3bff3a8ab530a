// Package wire defines the message types exchanged over the realtime
// transcription channel. Inbound messages arrive as a JSON envelope with a
// "type" discriminant; Decode turns each into one variant of the Event
// union so consumers dispatch on concrete types instead of raw strings.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/PratikAg001/doc-scribe/soap"
)

// Outbound messages.

// ProcessingSettings is sent exactly once after the channel opens, before
// any audio, carrying the selected processing mode.
type ProcessingSettings struct {
	Type           string `json:"type"`
	ProcessingMode string `json:"processing_mode"`
}

// StopRecording asks the server to finalize the session.
type StopRecording struct {
	Type string `json:"type"`
}

func NewProcessingSettings(mode string) ProcessingSettings {
	return ProcessingSettings{Type: "processing_settings", ProcessingMode: mode}
}

func NewStopRecording() StopRecording {
	return StopRecording{Type: "stop_recording"}
}

// Event is one decoded inbound message. The concrete type carries the
// payload; adding a message type means adding a variant, not a branch in
// every consumer.
type Event interface {
	eventType() string
}

// ConnectionStatus reports channel connectivity.
type ConnectionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ProcessingStatus echoes the server-confirmed processing mode.
type ProcessingStatus struct {
	Mode    string `json:"mode"`
	Message string `json:"message"`
}

// SpeechStatus reports voice activity.
type SpeechStatus struct {
	Status string `json:"status"`
}

// TranscriptUpdate carries interim (is_final=false) or final transcript
// text. FullTranscript is the complete transcript so far, when present.
type TranscriptUpdate struct {
	Text           string `json:"text"`
	IsFinal        bool   `json:"is_final"`
	FullTranscript string `json:"full_transcript"`
	ProcessingMode string `json:"processing_mode"`
}

// SessionComplete delivers the final transcript, the structured note, and
// the numbered segment list in a single message.
type SessionComplete struct {
	SessionID          string                      `json:"session_id"`
	Transcript         string                      `json:"transcript"`
	SoapNote           string                      `json:"soap_note"`
	SoapSections       map[string][]soap.Statement `json:"soap_sections"`
	TranscriptSegments []string                    `json:"transcript_segments"`
	ProcessingTime     float64                     `json:"processing_time"`
	ProcessingMode     string                      `json:"processing_mode"`
}

// ServerError is an error reported by the backend over the channel.
type ServerError struct {
	Message string `json:"message"`
}

// Unknown preserves a message whose type has no variant yet.
type Unknown struct {
	Type string
	Data json.RawMessage
}

func (ConnectionStatus) eventType() string { return "connection_status" }
func (ProcessingStatus) eventType() string { return "processing_status" }
func (SpeechStatus) eventType() string     { return "speech_status" }
func (TranscriptUpdate) eventType() string { return "transcript_update" }
func (SessionComplete) eventType() string  { return "session_complete" }
func (ServerError) eventType() string      { return "error" }
func (Unknown) eventType() string          { return "unknown" }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one inbound text message into its Event variant. Messages
// with an unrecognized type decode to Unknown rather than failing, so a
// newer server never breaks an older client.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}

	var ev Event
	switch env.Type {
	case "connection_status":
		ev = &ConnectionStatus{}
	case "processing_status":
		ev = &ProcessingStatus{}
	case "speech_status":
		ev = &SpeechStatus{}
	case "transcript_update":
		ev = &TranscriptUpdate{}
	case "session_complete":
		ev = &SessionComplete{}
	case "error":
		ev = &ServerError{}
	default:
		return Unknown{Type: env.Type, Data: env.Data}, nil
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return deref(ev), nil
}

// deref returns the value variant so consumers can switch on value types.
func deref(ev Event) Event {
	switch v := ev.(type) {
	case *ConnectionStatus:
		return *v
	case *ProcessingStatus:
		return *v
	case *SpeechStatus:
		return *v
	case *TranscriptUpdate:
		return *v
	case *SessionComplete:
		return *v
	case *ServerError:
		return *v
	case *Unknown:
		return *v
	default:
		return ev
	}
}
