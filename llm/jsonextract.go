package llm

import (
	"strings"
	"unicode"
)

// ExtractJSON isolates the JSON object or array inside a raw LLM response.
// Models frequently wrap structured output in a ```json ... ``` fence, or
// add a sentence of preamble before the braces; this strips both so the
// caller can hand a clean payload to json.Unmarshal.
func ExtractJSON(raw string) string {
	s := normalizeLLMText(raw)
	s = stripCodeFence(s)
	return isolateJSONBoundary(s)
}

// stripCodeFence removes a leading ```json (or bare ```) fence and its
// matching closing fence, if present.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}

	rest := trimmed[3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:]
	}

	if end := strings.LastIndex(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return rest
}

// isolateJSONBoundary trims any text before the first '{' or '[' and after
// the matching final '}' or ']', in case the model added commentary around
// the JSON payload despite being asked not to.
func isolateJSONBoundary(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return strings.TrimSpace(s)
	}

	open := s[start]
	close := byte('}')
	if open == '[' {
		close = ']'
	}

	end := strings.LastIndexByte(s, close)
	if end == -1 || end < start {
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : end+1])
}

// normalizeLLMText replaces Unicode whitespace and hyphen variants commonly
// inserted by LLMs with their ASCII equivalents, and strips zero-width
// characters, so downstream JSON parsing and substring matching behave
// predictably.
func normalizeLLMText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '‐' || r == '‑' || r == '‒' || r == '–' || r == '—':
			b.WriteByte('-')
		case r == '​' || r == '‌' || r == '‍' || r == '﻿':
			// strip zero-width characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
