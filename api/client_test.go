package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PratikAg001/doc-scribe/feedback"
)

func TestStartSession(t *testing.T) {
	var gotBody startSessionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/start-session" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{
			"session_id": "sess-42",
			"status":     "active",
			"message":    "Session started successfully",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	id, err := client.StartSession(context.Background(), "enhanced")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if id != "sess-42" {
		t.Errorf("session id = %q, want sess-42", id)
	}
	if gotBody.ProcessingMode != "enhanced" {
		t.Errorf("processing_mode = %q, want enhanced", gotBody.ProcessingMode)
	}
}

func TestSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session/sess-42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "sess-42",
			"status":     "completed",
			"transcript": "Patient reports pain.",
			"soap_sections": map[string]any{
				"subjective": []map[string]any{
					{"statement": "Pain reported.", "confidence": 0.9, "source_segments": []int{1}},
				},
			},
			"transcript_segments": []string{"Patient reports pain."},
			"processing_time":     2.5,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	record, err := client.Session(context.Background(), "sess-42")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if record.Transcript != "Patient reports pain." {
		t.Errorf("Transcript = %q", record.Transcript)
	}
	if len(record.SoapSections["subjective"]) != 1 {
		t.Errorf("sections = %+v", record.SoapSections)
	}
	if record.ProcessingTime != 2.5 {
		t.Errorf("ProcessingTime = %v", record.ProcessingTime)
	}
}

func TestSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"session_id": "a", "status": "completed"},
			{"session_id": "b", "status": "active"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	sessions, err := client.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "a" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestSubmitFeedback(t *testing.T) {
	var got feedback.Submission
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/submit-feedback" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"message":         "Feedback recorded",
			"edits_count":     1,
			"learning_status": "active",
		})
	}))
	defer server.Close()

	store := feedback.NewStore()
	store.Record("subjective", 0, "orig", "edited", feedback.FactualCorrection)
	sub := store.Build("sess-42", 5, 12, "good")

	client := NewClient(server.URL)
	ack, err := client.SubmitFeedback(context.Background(), sub)
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if ack.EditsCount != 1 {
		t.Errorf("EditsCount = %d", ack.EditsCount)
	}
	if got.SessionID != "sess-42" || len(got.Edits) != 1 {
		t.Errorf("submitted payload = %+v", got)
	}
	if got.Edits[0].EditType != feedback.FactualCorrection {
		t.Errorf("edit_type = %q", got.Edits[0].EditType)
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Session not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Session(context.Background(), "missing")
	if err == nil {
		t.Fatal("want error for 404")
	}
}
