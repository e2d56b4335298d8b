package conversations

import "errors"

var (
	// ErrConversationNotFound is returned when the referenced conversation does not exist
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrDuplicateCallSID is returned when creating a conversation whose call_sid is already stored
	ErrDuplicateCallSID = errors.New("call_sid already exists")

	// ErrMissingCallSID is returned when the call_sid is empty
	ErrMissingCallSID = errors.New("call_sid is required")

	// ErrMissingStartTime is returned when the start time is absent
	ErrMissingStartTime = errors.New("start_time is required")

	// ErrMissingEndTime is returned when finalizing without an end time
	ErrMissingEndTime = errors.New("end_time is required")

	// ErrEndBeforeStart is returned when the end time precedes the start time
	ErrEndBeforeStart = errors.New("end_time precedes start_time")

	// ErrNegativeDuration is returned for a negative duration
	ErrNegativeDuration = errors.New("duration_seconds cannot be negative")

	// ErrNegativeCount is returned for negative message totals
	ErrNegativeCount = errors.New("message totals cannot be negative")

	// ErrInvalidRole is returned when a message role is neither user nor assistant
	ErrInvalidRole = errors.New(`role must be "user" or "assistant"`)

	// ErrMissingContent is returned when a message has no content
	ErrMissingContent = errors.New("content is required")

	// ErrMissingTimestamp is returned when a message has no utterance time
	ErrMissingTimestamp = errors.New("timestamp is required")

	// ErrInvalidConfidence is returned when confidence falls outside [0,1]
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
)
