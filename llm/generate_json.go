package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
)

// FinishReason is the provider-agnostic reason a chat completion stopped,
// per SPEC_FULL.md §6's LLM contract.
type FinishReason string

const (
	FinishStop       FinishReason = "STOP"
	FinishMaxTokens  FinishReason = "MAX_TOKENS"
	FinishSafety     FinishReason = "SAFETY"
	FinishRecitation FinishReason = "RECITATION"
	FinishOther      FinishReason = "OTHER"
)

// Usage mirrors the {prompt, candidate, total} token accounting named by
// the LLM contract.
type Usage struct {
	Prompt    int
	Candidate int
	Total     int
}

// FinishInfo carries the provider's reported stop reason and token usage
// alongside a GenerateJSON call, so a caller building an LLMTruncated-style
// error does not need to re-derive it.
type FinishInfo struct {
	Reason FinishReason
	Usage  Usage
}

// GenerateOpts configures a single GenerateJSON call.
type GenerateOpts struct {
	Temperature     float64
	MaxOutputTokens int
	Retry           RetryConfig
}

var (
	// ErrTruncated means generation stopped because the output-token cap
	// was reached. Never retried: repeating the same prompt truncates
	// identically.
	ErrTruncated = errors.New("llm: response truncated by output token limit")
	// ErrSafetyBlocked means the provider refused to generate content for
	// policy reasons. Never retried.
	ErrSafetyBlocked = errors.New("llm: response blocked by content policy")
	// ErrTransient means a retried failure (an empty response, or any
	// error from provider.Chat, such as a network error, 5xx, or 429)
	// exhausted its retry budget.
	ErrTransient = errors.New("llm: request failed transiently")
	// ErrMalformedJSON means the response text could not be parsed as JSON
	// even after fence-stripping and boundary isolation. Never retried.
	ErrMalformedJSON = errors.New("llm: response is not valid JSON")
)

// GenerateJSON drives provider for exactly one structured sub-request: a
// single chat completion round-trip, no internal chunking or streaming
// (SPEC_FULL §4.2). Truncation, safety blocks, and malformed JSON are
// raised unchanged on the first occurrence because repeating the prompt
// would fail identically. Everything else is retried with exponential
// back-off: an empty response, and every error provider.Chat returns. The
// Chat error is not classified, so a status the provider itself gives up
// on at once (such as 401 or 400) is also wrapped as ErrTransient and
// retried here.
func GenerateJSON(ctx context.Context, provider Provider, system, user string, opts GenerateOpts) (json.RawMessage, FinishInfo, error) {
	var (
		result json.RawMessage
		info   FinishInfo
	)

	attempt := func() error {
		resp, err := provider.Chat(ctx, ChatRequest{
			Messages: []Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxOutputTokens,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}

		reason := normalizeFinishReason(resp.FinishReason)
		info = FinishInfo{
			Reason: reason,
			Usage: Usage{
				Prompt:    resp.PromptTokens,
				Candidate: resp.CompletionTokens,
				Total:     resp.TotalTokens,
			},
		}

		switch reason {
		case FinishMaxTokens:
			return backoff.Permanent(fmt.Errorf("%w: capped at %d output tokens (consumed %d)",
				ErrTruncated, opts.MaxOutputTokens, resp.CompletionTokens))
		case FinishSafety, FinishRecitation:
			return backoff.Permanent(ErrSafetyBlocked)
		}

		if strings.TrimSpace(resp.Content) == "" {
			// "Empty candidates" is retryable per §4.2.
			return fmt.Errorf("%w: empty response content", ErrTransient)
		}

		extracted := ExtractJSON(resp.Content)
		if !json.Valid([]byte(extracted)) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrMalformedJSON, truncateForError(extracted)))
		}

		result = json.RawMessage(extracted)
		return nil
	}

	if err := withRetry(ctx, opts.Retry, attempt); err != nil {
		return nil, info, err
	}
	return result, info, nil
}

// normalizeFinishReason maps the raw, provider-specific finish_reason
// string onto the taxonomy named in SPEC_FULL.md §6.
func normalizeFinishReason(raw string) FinishReason {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "stop", "end_turn", "eos":
		return FinishStop
	case "length", "max_tokens":
		return FinishMaxTokens
	case "content_filter", "safety", "blocked":
		return FinishSafety
	case "recitation":
		return FinishRecitation
	default:
		return FinishOther
	}
}

// truncateForError caps how much of a malformed response is embedded in an
// error message.
func truncateForError(s string) string {
	const maxLen = 200
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}
