package analysis

import "errors"

var (
	// ErrAnalysisNotFound is returned when the conversation has no stored analysis
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrInvalidGrade is returned when calificacion_lead is not caliente, tibio or frio
	ErrInvalidGrade = errors.New(`calificacion_lead must be "caliente", "tibio" or "frio"`)

	// ErrInvalidInterestLevel is returned when nivel_interes falls outside [0,10]
	ErrInvalidInterestLevel = errors.New("nivel_interes must be between 0 and 10")

	// ErrEmptyTranscript is returned when a conversation has no messages to analyze
	ErrEmptyTranscript = errors.New("analysis: conversation has no messages")

	// ErrMalformedAnalysis is returned when the model reply cannot be parsed as JSON
	ErrMalformedAnalysis = errors.New("analysis: model reply is not valid JSON")

	// ErrJobNotFound indicates the requested analysis job ID does not exist.
	ErrJobNotFound = errors.New("analysis: job not found")
)
