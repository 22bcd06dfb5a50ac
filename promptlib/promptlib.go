// Package promptlib resolves (useCase, promptID) to the prompt pair that
// drives a generation: a system prompt and a user template containing the
// literal {context} placeholder. It is read-only at generation time and
// falls back to built-in defaults when no caller-supplied prompt exists,
// matching the teacher's read-mostly, RWMutex-guarded cache pattern (no
// package-level singleton, constructed via New and passed down).
package promptlib

import "sync"

// Prompt is a named prompt pair. UserTemplate contains the literal
// "{context}" placeholder the Sub-Request Planner substitutes per piece.
type Prompt struct {
	ID           string
	Name         string
	System       string
	UserTemplate string
}

// Source is the external, read-only collaborator this module does not
// implement: the Prompt Library's CRUD store (§1 Non-goals). Library falls
// back to built-in defaults whenever Source is nil or returns ok=false.
type Source interface {
	GetPrompt(useCase, promptID string) (Prompt, bool, error)
}

// Library resolves prompts, caching lookups from Source behind a
// single-writer/multiple-reader lock — the one piece of shared mutable
// state this package owns (SPEC_FULL.md §5).
type Library struct {
	mu     sync.RWMutex
	cache  map[string]Prompt
	source Source
}

// New returns a Library backed by the optional external Source. A nil
// source means every lookup falls back to the built-in defaults.
func New(source Source) *Library {
	return &Library{
		cache:  make(map[string]Prompt),
		source: source,
	}
}

// GetPrompt resolves the prompt pair for useCase, optionally narrowed by
// promptID. Absence of a caller-defined prompt — no Source, a lookup miss,
// or a Source error — returns the built-in default for useCase.
func (l *Library) GetPrompt(useCase, promptID string) (Prompt, error) {
	key := useCase + "\x00" + promptID

	l.mu.RLock()
	if p, ok := l.cache[key]; ok {
		l.mu.RUnlock()
		return p, nil
	}
	l.mu.RUnlock()

	p := defaultPrompt(useCase)
	if l.source != nil {
		if found, ok, err := l.source.GetPrompt(useCase, promptID); err == nil && ok {
			p = found
		}
	}

	l.mu.Lock()
	l.cache[key] = p
	l.mu.Unlock()

	return p, nil
}
