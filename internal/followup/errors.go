package followup

import "errors"

var (
	// ErrScriptNotFound is returned when the referenced script does not exist
	ErrScriptNotFound = errors.New("follow-up script not found")

	// ErrAlreadySent is returned when marking a script that was already delivered
	ErrAlreadySent = errors.New("follow-up script already sent")

	// ErrMissingContent is returned when a script has no content
	ErrMissingContent = errors.New("script_content is required")
)
