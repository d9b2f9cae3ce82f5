// Package session sequences an interview: narrate a question, record the
// answer, submit it, advance. It owns the turn state machine, durable resume
// state, and the assembly of the per-answer payload from the capture
// subsystems.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parakeetlabs/rehearse/internal/api"
	"github.com/parakeetlabs/rehearse/internal/audiolevel"
	"github.com/parakeetlabs/rehearse/internal/bodylang"
	"github.com/parakeetlabs/rehearse/internal/observe"
	"github.com/parakeetlabs/rehearse/internal/transcript"
	"github.com/parakeetlabs/rehearse/internal/voicemetrics"
	"github.com/parakeetlabs/rehearse/pkg/audio"
	"github.com/parakeetlabs/rehearse/pkg/provider/stt"
)

// State is the controller's lifecycle position.
type State string

const (
	StateNotStarted State = "not_started"
	StateRestoring  State = "restoring"
	StateNarrating  State = "narrating"
	StateRecording  State = "recording"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateErrored    State = "errored"
)

var (
	// ErrInvalidState is returned when an operation does not apply to the
	// controller's current state.
	ErrInvalidState = errors.New("session: operation not valid in current state")

	// ErrSubmitInFlight is returned when Submit is called while a previous
	// Submit is still running.
	ErrSubmitInFlight = errors.New("session: submission already in flight")
)

// Backend is the server surface the controller needs. *api.Client satisfies
// it; tests use a scripted implementation.
type Backend interface {
	StartInterview(ctx context.Context, interviewID string) ([]api.Question, error)
	SubmitResponse(ctx context.Context, interviewID string, sub api.SubmitRequest) (api.SubmitResult, error)
}

var _ Backend = (*api.Client)(nil)

// Config assembles a Controller from its collaborators.
type Config struct {
	InterviewID string
	Backend     Backend
	Narrator    *Narrator

	// STT is the transcription provider, normally a failover chain.
	STT stt.Provider

	// AudioContext opens microphone capture devices for the level monitor
	// and the speech feeder.
	AudioContext audio.Context

	// Body is the body-language strategy. Nil disables capture.
	Body bodylang.Strategy

	// Store persists resume state. Required.
	Store *Store

	// Corrector is applied to finalized transcript segments. Nil installs
	// the default technical-term table.
	Corrector *transcript.Corrector

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	Level    audiolevel.Config
	Voice    voicemetrics.Config
	Language string

	// ChunkInterval is the cadence for feeding audio to the transcriber.
	// Default 250ms.
	ChunkInterval time.Duration

	// AttachAudio uploads a FLAC recording with each answer.
	AttachAudio bool

	Logger *slog.Logger
}

// fluencyMetrics is the JSON document submitted as fluency_metrics.
type fluencyMetrics struct {
	VoiceMetrics voicemetrics.Snapshot `json:"voiceMetrics"`
	BodyLanguage bodylang.Aggregate    `json:"bodyLanguage"`
}

// pendingAnswer is a computed, not-yet-accepted submission. Kept across a
// failed upload so a retry re-sends the same data instead of recomputing
// from torn-down streams.
type pendingAnswer struct {
	questionID string
	request    api.SubmitRequest
}

// Controller is the session turn state machine.
//
// Methods are driven sequentially by the UI loop; accessors (State,
// CurrentQuestion, LiveTranscript) are safe to call concurrently from a
// render loop.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	agg     *voicemetrics.Aggregator
	monitor *audiolevel.Monitor

	submitGuard atomic.Bool
	closeOnce   sync.Once

	mu         sync.Mutex
	state      State
	questions  []api.Question
	index      int
	rec        *turnRecorder
	recStarted time.Time
	pending    *pendingAnswer
	counted    bool // ActiveSessions incremented
}

// NewController builds a Controller and reads the durable store once: a
// prior in-progress session puts the controller in StateRestoring, which
// still requires an explicit Start before any audio plays.
func NewController(cfg Config) (*Controller, error) {
	if cfg.InterviewID == "" {
		return nil, errors.New("session: interview id is required")
	}
	if cfg.Backend == nil || cfg.Narrator == nil || cfg.STT == nil || cfg.AudioContext == nil || cfg.Store == nil {
		return nil, errors.New("session: backend, narrator, stt, audio context and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Corrector == nil {
		cfg.Corrector = transcript.NewCorrector(transcript.DefaultTermTable)
	}
	if cfg.Level.SampleRate == 0 {
		cfg.Level.SampleRate = 16000
	}

	c := &Controller{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		agg:     voicemetrics.NewAggregator(cfg.Voice),
		state:   StateNotStarted,
	}
	c.monitor = audiolevel.NewMonitor(cfg.AudioContext, cfg.Level, c.agg.AddSample)

	stored, ok, err := cfg.Store.Load(cfg.InterviewID)
	if err != nil {
		c.log.Warn("resume state unreadable, starting fresh", "error", err)
	} else if ok && stored.Started {
		c.state = StateRestoring
		c.index = stored.QuestionIndex
		c.log.Info("prior session found, awaiting restart",
			"interview_id", cfg.InterviewID, "question_index", stored.QuestionIndex)
	}
	return c, nil
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentQuestion returns the question being asked or answered.
func (c *Controller) CurrentQuestion() (api.Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.questions) == 0 || c.index >= len(c.questions) {
		return api.Question{}, false
	}
	return c.questions[c.index], true
}

// LiveTranscript returns the in-progress transcript, interim text included.
func (c *Controller) LiveTranscript() string {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec == nil {
		return ""
	}
	return rec.live()
}

// Level exposes the live microphone level for the waveform indicator.
func (c *Controller) Level() float64 {
	return c.monitor.Level()
}

// BodyMetrics exposes the latest body-language snapshot.
func (c *Controller) BodyMetrics() bodylang.Metrics {
	if c.cfg.Body == nil {
		return bodylang.Metrics{}
	}
	return c.cfg.Body.Metrics()
}

// Start begins (or resumes) the interview: fetch the question list, persist
// the position, narrate the current question, then open the recording
// pipeline. It returns once recording is live.
//
// A fetch failure is fatal; the controller enters StateErrored.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateNotStarted && c.state != StateRestoring {
		c.mu.Unlock()
		return fmt.Errorf("%w: Start from %s", ErrInvalidState, c.state)
	}
	resuming := c.state == StateRestoring
	restoredIndex := c.index
	c.mu.Unlock()

	questions, err := c.cfg.Backend.StartInterview(ctx, c.cfg.InterviewID)
	if err != nil {
		c.mu.Lock()
		c.state = StateErrored
		c.mu.Unlock()
		return fmt.Errorf("session: loading questions: %w", err)
	}

	index := 0
	if resuming {
		index = restoredIndex
		if index >= len(questions) {
			index = len(questions) - 1
		}
	}

	c.mu.Lock()
	c.questions = questions
	c.index = index
	c.mu.Unlock()

	if err := c.cfg.Store.Save(c.cfg.InterviewID, StoredState{Started: true, QuestionIndex: index}); err != nil {
		c.log.Warn("resume state not persisted", "error", err)
	}

	c.metrics.ActiveSessions.Add(ctx, 1)
	c.mu.Lock()
	c.counted = true
	c.mu.Unlock()

	c.log.Info("interview started",
		"interview_id", c.cfg.InterviewID, "questions", len(questions), "resumed", resuming)
	c.runTurn(ctx)
	return nil
}

// runTurn narrates the current question and then brings up the recording
// pipeline. Per-turn buffers are reset exactly once, at the transition from
// narration to recording.
func (c *Controller) runTurn(ctx context.Context) {
	c.setState(StateNarrating)
	q := c.mustCurrentQuestion()

	narrateStart := time.Now()
	c.cfg.Narrator.Speak(ctx, q.Text)
	c.metrics.NarrationDuration.Record(ctx, time.Since(narrateStart).Seconds())

	c.agg.Reset()
	if c.cfg.Body != nil {
		c.cfg.Body.Reset()
	}

	rec := startTurnRecorder(ctx, c.cfg.AudioContext, c.cfg.STT, stt.StreamConfig{
		SampleRate: int(c.cfg.Level.SampleRate),
		Channels:   1,
		Language:   c.cfg.Language,
	}, c.cfg.Corrector, c.cfg.ChunkInterval, c.cfg.AttachAudio, c.log)

	c.monitor.Start(ctx)
	if c.cfg.Body != nil {
		c.cfg.Body.Start(ctx)
	}

	c.mu.Lock()
	c.rec = rec
	c.recStarted = time.Now()
	c.state = StateRecording
	c.mu.Unlock()

	c.log.Info("recording answer", "question_id", q.ID)
}

// Submit ends the current answer: stop every capture subsystem, compute the
// fluency snapshot and body-language aggregate, and upload the payload. On
// success the controller advances to the next question (narrating it before
// returning) or completes the interview.
//
// A failed upload keeps the computed payload; calling Submit again re-sends
// it without recomputation. Concurrent duplicate calls are rejected by a
// synchronous guard in addition to the state check.
func (c *Controller) Submit(ctx context.Context) error {
	if !c.submitGuard.CompareAndSwap(false, true) {
		return ErrSubmitInFlight
	}
	defer c.submitGuard.Store(false)

	c.mu.Lock()
	switch {
	case c.state == StateRecording:
	case c.state == StateSubmitting && c.pending != nil: // retry
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: Submit from %s", ErrInvalidState, c.state)
	}
	rec := c.rec
	c.rec = nil
	c.state = StateSubmitting
	pending := c.pending
	c.mu.Unlock()

	if pending == nil {
		c.mu.Lock()
		recStarted := c.recStarted
		c.mu.Unlock()
		pending = c.composeAnswer(rec)
		if !recStarted.IsZero() {
			c.metrics.STTDuration.Record(ctx, time.Since(recStarted).Seconds())
		}
		c.mu.Lock()
		c.pending = pending
		c.mu.Unlock()
	}

	submitStart := time.Now()
	result, err := c.cfg.Backend.SubmitResponse(ctx, c.cfg.InterviewID, pending.request)
	c.metrics.SubmitDuration.Record(ctx, time.Since(submitStart).Seconds())
	if err != nil {
		c.metrics.RecordSubmission(ctx, c.cfg.InterviewID, "error")
		c.log.Error("submission failed, answer retained for retry",
			"question_id", pending.questionID, "error", err)
		return fmt.Errorf("session: submitting answer: %w", err)
	}
	c.metrics.RecordSubmission(ctx, c.cfg.InterviewID, "ok")
	c.metrics.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("interview_id", c.cfg.InterviewID)))

	c.mu.Lock()
	c.pending = nil
	if result.NewQuestion != nil {
		c.questions = append(c.questions, *result.NewQuestion)
	}
	c.index++
	done := c.index >= len(c.questions)
	index := c.index
	c.mu.Unlock()

	if done {
		if err := c.cfg.Store.Clear(c.cfg.InterviewID); err != nil {
			c.log.Warn("resume state not cleared", "error", err)
		}
		c.setState(StateCompleted)
		c.releaseSessionCount(ctx)
		c.log.Info("interview completed", "interview_id", c.cfg.InterviewID)
		return nil
	}

	if err := c.cfg.Store.Save(c.cfg.InterviewID, StoredState{Started: true, QuestionIndex: index}); err != nil {
		c.log.Warn("resume state not persisted", "error", err)
	}
	c.runTurn(ctx)
	return nil
}

// composeAnswer stops the capture subsystems and assembles the payload.
// Reading transcript and metrics happens only after every stream has been
// explicitly stopped, so no late event can be dropped mid-computation.
func (c *Controller) composeAnswer(rec *turnRecorder) *pendingAnswer {
	c.monitor.Stop()
	if c.cfg.Body != nil {
		c.cfg.Body.Stop()
	}

	var text string
	var answerAudio []byte
	if rec != nil {
		text, answerAudio = rec.stop()
	}

	snapshot := c.agg.Finalize(text)

	var bodyAgg bodylang.Aggregate
	var issues []bodylang.Issue
	if c.cfg.Body != nil {
		bodyAgg = c.cfg.Body.Aggregate()
		issues = c.cfg.Body.Issues()
	}

	q := c.mustCurrentQuestion()
	req := api.SubmitRequest{
		QuestionID: q.ID,
		Transcript: text,
		FluencyMetrics: fluencyMetrics{
			VoiceMetrics: snapshot,
			BodyLanguage: bodyAgg,
		},
		Audio: answerAudio,
	}
	if len(issues) > 0 {
		req.MetricsTimeline = issues
	}
	return &pendingAnswer{questionID: q.ID, request: req}
}

// Close tears everything down unconditionally, whatever state the machine is
// in: recording pipeline, level monitor, body-language capture. Safe to call
// more than once and after Completed.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		rec := c.rec
		c.rec = nil
		if c.state != StateCompleted && c.state != StateErrored {
			c.state = StateErrored
		}
		c.mu.Unlock()

		if rec != nil {
			rec.stop()
		}
		c.monitor.Stop()
		if c.cfg.Body != nil {
			c.cfg.Body.Stop()
		}
		c.releaseSessionCount(context.Background())
		c.log.Info("session closed", "interview_id", c.cfg.InterviewID)
	})
}

func (c *Controller) releaseSessionCount(ctx context.Context) {
	c.mu.Lock()
	counted := c.counted
	c.counted = false
	c.mu.Unlock()
	if counted {
		c.metrics.ActiveSessions.Add(ctx, -1)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) mustCurrentQuestion() api.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.questions[c.index]
}
