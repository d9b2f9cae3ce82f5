package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStartInterview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/interviews/abc-123/start" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"questions": []map[string]any{
				{"id": "q1", "text": "Tell me about yourself."},
				{"id": "q2", "text": "Describe a hard bug you fixed.", "is_follow_up": false},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	questions, err := c.StartInterview(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("StartInterview: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(questions))
	}
	if questions[0].ID != "q1" || questions[1].Text != "Describe a hard bug you fixed." {
		t.Fatalf("unexpected questions: %+v", questions)
	}
}

func TestStartInterviewEmptyListFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"questions": []any{}})
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).StartInterview(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty question list")
	}
}

func TestSubmitResponseMultipartFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/interviews/abc/submit_response" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart: %v", err)
		}
		if got := r.FormValue("question_id"); got != "q1" {
			t.Errorf("question_id = %q", got)
		}
		if got := r.FormValue("transcript"); got != "I would use PostgreSQL" {
			t.Errorf("transcript = %q", got)
		}

		var metrics map[string]any
		if err := json.Unmarshal([]byte(r.FormValue("fluency_metrics")), &metrics); err != nil {
			t.Errorf("fluency_metrics is not JSON: %v", err)
		}
		if metrics["wordCount"] != float64(4) {
			t.Errorf("fluency_metrics = %v", metrics)
		}

		var timeline []map[string]any
		if err := json.Unmarshal([]byte(r.FormValue("metrics_timeline")), &timeline); err != nil {
			t.Errorf("metrics_timeline is not JSON: %v", err)
		}
		if len(timeline) != 1 || timeline[0]["kind"] != "posture" {
			t.Errorf("metrics_timeline = %v", timeline)
		}

		file, header, err := r.FormFile("audio_file")
		if err != nil {
			t.Fatalf("audio_file missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "answer.flac" {
			t.Errorf("audio filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fLaC-bytes" {
			t.Errorf("audio payload = %q", data)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"new_question": map[string]any{"id": "q2", "text": "Why PostgreSQL?", "is_follow_up": true},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.SubmitResponse(context.Background(), "abc", SubmitRequest{
		QuestionID:      "q1",
		Transcript:      "I would use PostgreSQL",
		FluencyMetrics:  map[string]any{"wordCount": 4},
		MetricsTimeline: []map[string]any{{"kind": "posture"}},
		Audio:           []byte("fLaC-bytes"),
	})
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if result.Completed {
		t.Fatal("Completed = true, want follow-up question")
	}
	if result.NewQuestion == nil || result.NewQuestion.ID != "q2" || !result.NewQuestion.FollowUp {
		t.Fatalf("NewQuestion = %+v", result.NewQuestion)
	}
}

func TestSubmitResponseOmitsOptionalParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart: %v", err)
		}
		if _, ok := r.MultipartForm.Value["metrics_timeline"]; ok {
			t.Error("metrics_timeline present, want omitted")
		}
		if _, _, err := r.FormFile("audio_file"); err == nil {
			t.Error("audio_file present, want omitted")
		}
		json.NewEncoder(w).Encode(map[string]any{"completed": true})
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).SubmitResponse(context.Background(), "abc", SubmitRequest{
		QuestionID:     "q1",
		Transcript:     "answer",
		FluencyMetrics: map[string]any{},
	})
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if !result.Completed {
		t.Fatal("Completed = false, want true when no new question")
	}
}

func TestSubmitResponseNullNewQuestionMeansCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		json.NewEncoder(w).Encode(map[string]any{"new_question": nil})
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).SubmitResponse(context.Background(), "abc", SubmitRequest{
		QuestionID:     "q1",
		FluencyMetrics: map[string]any{},
	})
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if !result.Completed {
		t.Fatal("Completed = false, want true for null new_question")
	}
}

func TestServerErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "interview not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).StartInterview(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	for _, want := range []string{"404", "interview not found"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
