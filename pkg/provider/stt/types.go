package stt

// Transcript represents a speech-to-text result. Both interim and final
// results use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a committed result or an interim
	// guess that will be replaced.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64
}
