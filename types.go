package manualrag

import (
	"github.com/wbaines/manualrag/merge"
	"github.com/wbaines/manualrag/progress"
)

// UseCase selects which artifact shape a generation produces.
type UseCase string

const (
	UseCaseChecksheet       UseCase = "checksheet"
	UseCaseWorkInstructions UseCase = "work_instructions"
)

// GenerationMetadata carries correlation and diagnostic data alongside a
// GenerationResult.
type GenerationMetadata struct {
	GenerationID string `json:"generationId"`
	Model        string `json:"model"`
}

// GenerationResult is the artifact produced by a generation, together with
// the retrieval and citation context it was grounded on.
type GenerationResult struct {
	UseCase               UseCase            `json:"useCase"`
	DocumentIDs           []string           `json:"documentIds"`
	Data                  merge.Artifact     `json:"data"`
	ChunksUsed            int                `json:"chunksUsed"`
	ContextLength         int                `json:"contextLength"`
	ProcessingTimeSeconds float64            `json:"processingTimeSeconds"`
	Sources               []string           `json:"sources"`
	CitationText          string             `json:"citationText"`
	GenerationMetadata    GenerationMetadata `json:"generationMetadata"`
}

// generationOptions holds the resolved value of every GenerationOption.
type generationOptions struct {
	queryText string
	topK      int
	promptID  string
	provider  string
	reporter  progress.Reporter
}

// GenerationOption configures a single Generate call.
type GenerationOption func(*generationOptions)

// WithQueryText sets the text embedded to drive nearest-neighbor retrieval.
// Without it, retrieval returns an arbitrary sample from the matching
// document set.
func WithQueryText(text string) GenerationOption {
	return func(o *generationOptions) { o.queryText = text }
}

// WithTopK overrides the default number of chunks requested from the
// vector store.
func WithTopK(topK int) GenerationOption {
	return func(o *generationOptions) { o.topK = topK }
}

// WithPromptID narrows Prompt Library resolution to a specific prompt
// variant.
func WithPromptID(id string) GenerationOption {
	return func(o *generationOptions) { o.promptID = id }
}

// WithProvider overrides the configured chat provider name for this
// generation only. If the name is not one the Orchestrator was built with,
// Generate falls back to the default provider and logs a warning.
func WithProvider(name string) GenerationOption {
	return func(o *generationOptions) { o.provider = name }
}

// WithProgress attaches a Progress Reporter to receive per-piece events.
// Without it, progress events are discarded.
func WithProgress(r progress.Reporter) GenerationOption {
	return func(o *generationOptions) { o.reporter = r }
}
