// Package prompts contains the prompt templates the agent sends to
// models.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and are validated by
// tests. Operator-supplied additions live in the guidance directory and
// arrive here as parsed guidance documents.
package prompts
