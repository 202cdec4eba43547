package prompts

import (
	"fmt"

	"github.com/fleetchat/fleetd/internal/a2ui"
)

// retryTemplate asks the model to regenerate after a parse or
// validation failure. Verbs: the error, the delimiter, the original
// user request.
const retryTemplate = `Your previous response was invalid: %s. Please generate a valid response that follows the A2UI JSON schema. The response must be split by '%s' and the JSON part must validate against the schema. Please retry the original request: '%s'`

// RetryFeedback builds the next query after a failed attempt. original
// is always the user's first request, never an earlier feedback text,
// so the prompt does not grow with each retry.
func RetryFeedback(original string, err error) string {
	return fmt.Sprintf(retryTemplate, err, a2ui.Delimiter, original)
}

// FallbackText is the reply when every attempt failed validation.
func FallbackText(err error) string {
	return fmt.Sprintf("I'm sorry, I'm having trouble generating the interface for that request right now. Please try again in a moment. Error: %v", err)
}

// FallbackUpdate is the status note attached to a fallback reply.
const FallbackUpdate = "Validation failed, returning text-only response"
