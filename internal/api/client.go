// Package api talks to the interview backend: session start and per-answer
// submission. Narration audio is fetched by the tts/aura provider, not here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Question is one interview question as the server hands it out.
type Question struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	FollowUp bool   `json:"is_follow_up,omitempty"`
}

// SubmitRequest carries one answer. FluencyMetrics and MetricsTimeline are
// JSON-encoded into the multipart form; Audio, when non-empty, is attached
// as a FLAC file.
type SubmitRequest struct {
	QuestionID      string
	Transcript      string
	FluencyMetrics  any
	MetricsTimeline any
	Audio           []byte
}

// SubmitResult is the server's verdict on a submission: either a next
// question (possibly a dynamically generated follow-up) or completion.
type SubmitResult struct {
	NewQuestion *Question `json:"new_question"`
	Completed   bool      `json:"completed"`
}

// Client is the HTTP client for the interview backend.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient builds a Client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartInterview begins the interview and returns the ordered question list.
func (c *Client) StartInterview(ctx context.Context, interviewID string) ([]Question, error) {
	endpoint := fmt.Sprintf("%s/interviews/%s/start", c.base, url.PathEscape(interviewID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("api: building start request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: starting interview: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var body struct {
		Questions []Question `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("api: decoding question list: %w", err)
	}
	if len(body.Questions) == 0 {
		return nil, fmt.Errorf("api: interview %s has no questions", interviewID)
	}
	c.log.Info("interview started", "interview_id", interviewID, "questions", len(body.Questions))
	return body.Questions, nil
}

// SubmitResponse uploads one answer as a multipart form and reports whether
// the server appended a new question or finished the interview.
func (c *Client) SubmitResponse(ctx context.Context, interviewID string, sub SubmitRequest) (SubmitResult, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("question_id", sub.QuestionID); err != nil {
		return SubmitResult{}, fmt.Errorf("api: writing question_id: %w", err)
	}
	if err := form.WriteField("transcript", sub.Transcript); err != nil {
		return SubmitResult{}, fmt.Errorf("api: writing transcript: %w", err)
	}
	if err := writeJSONField(form, "fluency_metrics", sub.FluencyMetrics); err != nil {
		return SubmitResult{}, err
	}
	if sub.MetricsTimeline != nil {
		if err := writeJSONField(form, "metrics_timeline", sub.MetricsTimeline); err != nil {
			return SubmitResult{}, err
		}
	}
	if len(sub.Audio) > 0 {
		part, err := form.CreateFormFile("audio_file", "answer.flac")
		if err != nil {
			return SubmitResult{}, fmt.Errorf("api: attaching audio: %w", err)
		}
		if _, err := part.Write(sub.Audio); err != nil {
			return SubmitResult{}, fmt.Errorf("api: attaching audio: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return SubmitResult{}, fmt.Errorf("api: finalizing form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/interviews/%s/submit_response", c.base, url.PathEscape(interviewID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("api: building submit request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("api: submitting answer: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return SubmitResult{}, err
	}

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SubmitResult{}, fmt.Errorf("api: decoding submit response: %w", err)
	}
	if result.NewQuestion == nil {
		result.Completed = true
	}
	c.log.Info("answer submitted",
		"interview_id", interviewID,
		"question_id", sub.QuestionID,
		"follow_up", result.NewQuestion != nil,
		"completed", result.Completed)
	return result, nil
}

func writeJSONField(form *multipart.Writer, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("api: encoding %s: %w", name, err)
	}
	if err := form.WriteField(name, string(raw)); err != nil {
		return fmt.Errorf("api: writing %s: %w", name, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("api: %s %s: status %d: %s",
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}
