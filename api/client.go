// Package api is the request/response client for the transcription
// backend's HTTP surface: session lifecycle, history, feedback, and
// learning analytics. It is independent of the realtime channel.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PratikAg001/doc-scribe/feedback"
	"github.com/PratikAg001/doc-scribe/soap"
)

// Client talks to the backend over plain HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

// SessionRecord is a full stored session as returned by the backend.
type SessionRecord struct {
	SessionID           string                      `json:"session_id"`
	Status              string                      `json:"status"`
	CreatedAt           string                      `json:"created_at"`
	Transcript          string                      `json:"transcript"`
	SoapNote            string                      `json:"soap_note"`
	SoapSections        map[string][]soap.Statement `json:"soap_sections"`
	TranscriptSegments  []string                    `json:"transcript_segments"`
	ProcessingTime      float64                     `json:"processing_time"`
	AudioProcessingMode string                      `json:"audio_processing_mode"`
}

// FeedbackAck is the backend's response to a feedback submission.
type FeedbackAck struct {
	Message        string `json:"message"`
	EditsCount     int    `json:"edits_count"`
	LearningStatus string `json:"learning_status"`
	FeedbackID     string `json:"feedback_id"`
}

type startSessionRequest struct {
	ProcessingMode string `json:"processing_mode"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// StartSession creates a new session and returns its server-assigned id.
func (c *Client) StartSession(ctx context.Context, mode string) (string, error) {
	var resp startSessionResponse
	err := c.post(ctx, "/api/start-session", startSessionRequest{ProcessingMode: mode}, &resp)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return resp.SessionID, nil
}

// Sessions lists stored sessions, newest first.
func (c *Client) Sessions(ctx context.Context) ([]SessionRecord, error) {
	var sessions []SessionRecord
	if err := c.get(ctx, "/api/sessions", &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Session fetches one full session record by id.
func (c *Client) Session(ctx context.Context, id string) (*SessionRecord, error) {
	var record SessionRecord
	path := "/api/session/" + url.PathEscape(id)
	if err := c.get(ctx, path, &record); err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &record, nil
}

// SubmitFeedback sends the edit overlay and ratings for a session.
func (c *Client) SubmitFeedback(ctx context.Context, sub feedback.Submission) (*FeedbackAck, error) {
	var ack FeedbackAck
	if err := c.post(ctx, "/api/submit-feedback", sub, &ack); err != nil {
		return nil, fmt.Errorf("submit feedback: %w", err)
	}
	return &ack, nil
}

// LearningAnalytics fetches the aggregate improvement metrics. The shape
// is owned by the backend, so it stays an open map.
func (c *Client) LearningAnalytics(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.get(ctx, "/api/learning-analytics", &stats); err != nil {
		return nil, fmt.Errorf("get learning analytics: %w", err)
	}
	return stats, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf(
				"unexpected status code: %d, failed to read response body: %w",
				resp.StatusCode, readErr,
			)
		}
		return fmt.Errorf(
			"unexpected status code: %d, response body: %s",
			resp.StatusCode, string(body),
		)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
