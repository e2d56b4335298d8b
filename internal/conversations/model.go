package conversations

import (
	"strings"
	"time"
)

// Message roles accepted by the log. Anything else is rejected at the
// boundary; the column itself stays a plain varchar.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidRole reports whether role is one of the two accepted values.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// Conversation is one recorded call between a caller and the assistant.
// The numeric ID is the surrogate key; CallSID is the natural key assigned
// by the telephony provider and never changes once set.
type Conversation struct {
	ID                     int64      `json:"id"`
	CallSID                string     `json:"call_sid"`
	PhoneNumber            string     `json:"phone_number,omitempty"`
	StartTime              time.Time  `json:"start_time"`
	EndTime                *time.Time `json:"end_time,omitempty"`
	DurationSeconds        *float64   `json:"duration_seconds,omitempty"`
	TotalUserMessages      int        `json:"total_user_messages"`
	TotalAssistantMessages int        `json:"total_assistant_messages"`
	CreatedAt              time.Time  `json:"created_at"`
}

// Message is a single utterance within a conversation. Confidence carries
// the speech-to-text score when the pipeline has one; synthesized assistant
// turns usually leave it nil, but nothing forbids setting it.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Confidence     *float64  `json:"confidence,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest starts a new conversation record.
type CreateRequest struct {
	CallSID     string    `json:"call_sid"`
	PhoneNumber string    `json:"phone_number"`
	StartTime   time.Time `json:"start_time"`
}

// Validate checks the create request.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.CallSID) == "" {
		return ErrMissingCallSID
	}
	if r.StartTime.IsZero() {
		return ErrMissingStartTime
	}
	return nil
}

// phone returns the phone number to persist, defaulting to "unknown" when
// the pipeline did not capture one.
func (r *CreateRequest) phone() string {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return "unknown"
	}
	return r.PhoneNumber
}

// FinalizeRequest closes a conversation with the pipeline's authoritative
// totals. Repeating the call with identical values is a no-op; different
// values overwrite (last writer wins).
type FinalizeRequest struct {
	EndTime                time.Time `json:"end_time"`
	DurationSeconds        float64   `json:"duration_seconds"`
	TotalUserMessages      int       `json:"total_user_messages"`
	TotalAssistantMessages int       `json:"total_assistant_messages"`
}

// Validate checks the finalize request.
func (r *FinalizeRequest) Validate() error {
	if r.EndTime.IsZero() {
		return ErrMissingEndTime
	}
	if r.DurationSeconds < 0 {
		return ErrNegativeDuration
	}
	if r.TotalUserMessages < 0 || r.TotalAssistantMessages < 0 {
		return ErrNegativeCount
	}
	return nil
}

// AppendMessageRequest adds one utterance to a conversation.
type AppendMessageRequest struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the append request.
func (r *AppendMessageRequest) Validate() error {
	if !ValidRole(r.Role) {
		return ErrInvalidRole
	}
	if r.Content == "" {
		return ErrMissingContent
	}
	if r.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return ErrInvalidConfidence
	}
	return nil
}
