// Package llm wraps an OpenRouter-compatible chat completions API. The
// planner drives it through CompleteJSON, which forces JSON-only responses
// and tolerates the formatting quirks different providers exhibit.
package llm
