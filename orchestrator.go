// Package manualrag implements the Retrieval-Augmented Generation
// Orchestrator: given document identifiers already ingested into a vector
// store and a use case, it retrieves relevant passages, partitions them into
// many small pieces, drives an LLM under strict per-piece size budgets, and
// merges the partial structured outputs into one attributed artifact.
package manualrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wbaines/manualrag/llm"
	"github.com/wbaines/manualrag/merge"
	"github.com/wbaines/manualrag/partition"
	"github.com/wbaines/manualrag/planner"
	"github.com/wbaines/manualrag/progress"
	"github.com/wbaines/manualrag/promptlib"
	"github.com/wbaines/manualrag/vectorstore"
)

// genState names the generation state machine's steps.
type genState string

const (
	stateQueued       genState = "QUEUED"
	stateRetrieving   genState = "RETRIEVING"
	statePartitioning genState = "PARTITIONING"
	stateGenerating   genState = "GENERATING"
	stateMerging      genState = "MERGING"
	stateValidating   genState = "VALIDATING"
	stateDone         genState = "DONE"
	stateFailed       genState = "FAILED"
)

// Orchestrator is the top-level driver that composes the Vector Store
// Adapter, LLM Adapter, Prompt Library, Context Partitioner, Sub-Request
// Planner, Merger, and Progress Reporter into end-to-end generation. It
// holds no singletons: every collaborator is injected at construction.
type Orchestrator struct {
	store     vectorstore.Store
	providers map[string]llm.Provider
	chat      llm.Provider
	chatName  string
	prompts   *promptlib.Library
	cfg       Config
	logger    *slog.Logger
}

// New constructs an Orchestrator. cfg.Chat.Provider selects the default chat
// provider; extra named providers (e.g. for WithProvider overrides at
// generation time) can be supplied via WithProviders.
func New(cfg Config, store vectorstore.Store, prompts *promptlib.Library, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("manualrag: %w: vector store is required", ErrInvalidInput)
	}

	o := &Orchestrator{
		store:     store,
		providers: make(map[string]llm.Provider),
		prompts:   prompts,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.prompts == nil {
		o.prompts = promptlib.New(nil)
	}

	chat, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("manualrag: creating chat provider: %w", err)
	}
	chat = llm.NewRateLimiter(chat, o.rateLimit(), o.burst())
	o.chat = chat
	o.chatName = cfg.Chat.Provider
	o.providers[cfg.Chat.Provider] = chat

	return o, nil
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProviders registers additional named chat providers a generation can
// select via WithProvider. The provider configured as cfg.Chat remains the
// default and is always registered under its own name regardless of this
// option.
func WithProviders(providers map[string]llm.Provider) Option {
	return func(o *Orchestrator) {
		for name, p := range providers {
			o.providers[name] = p
		}
	}
}

func (o *Orchestrator) rateLimit() float64 {
	if o.cfg.RequestsPerSecond > 0 {
		return o.cfg.RequestsPerSecond
	}
	return 50.0 / 60.0
}

func (o *Orchestrator) burst() int {
	if o.cfg.Burst > 0 {
		return o.cfg.Burst
	}
	return 1
}

// Generate performs the end-to-end RAG generation described in SPEC_FULL.md
// §4.7: retrieve, partition, plan, generate, merge, validate, assemble.
func (o *Orchestrator) Generate(ctx context.Context, docIDs []string, useCase UseCase, opts ...GenerationOption) (*GenerationResult, error) {
	start := time.Now()
	state := stateQueued

	if len(docIDs) == 0 {
		return nil, fmt.Errorf("manualrag: %w: documentIds must not be empty", ErrInvalidInput)
	}
	if useCase != UseCaseChecksheet && useCase != UseCaseWorkInstructions {
		return nil, fmt.Errorf("manualrag: %w: unrecognized use case %q", ErrInvalidInput, useCase)
	}

	options := &generationOptions{
		topK:     o.cfg.TopK,
		reporter: progress.NopReporter{},
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.topK <= 0 {
		options.topK = 10
	}
	if options.reporter == nil {
		options.reporter = progress.NopReporter{}
	}

	generationID := uuid.NewString()
	logger := o.logger.With("generationId", generationID, "useCase", useCase)

	// Step 1: normalize input — substitute an unavailable provider and log.
	chat, providerName := o.resolveProvider(options.provider, logger)

	// Step 2 + 3: retrieve.
	state = stateRetrieving
	chunks, err := o.store.QueryByDocumentIDs(ctx, docIDs, options.queryText, options.topK)
	if err != nil {
		return nil, fmt.Errorf("manualrag: %s: retrieving chunks: %w", state, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("manualrag: %w", ErrNoDocumentsIngested)
	}

	// Step 4: build bounded context and position map.
	window, positions, refs := buildContextWindow(chunks, o.maxContextChars())
	if strings.TrimSpace(window) == "" {
		return nil, fmt.Errorf("manualrag: %w", ErrEmptyContext)
	}

	// Step 5: resolve prompt pair.
	tmpl, err := o.prompts.GetPrompt(string(useCase), options.promptID)
	if err != nil {
		return nil, fmt.Errorf("manualrag: resolving prompt: %w", err)
	}

	// Step 6: partition.
	state = statePartitioning
	pieces := partition.Partition(window, positions, partition.Config{
		TargetChars: o.partitionTargetChars(),
		MinPieces:   o.minPieces(),
	})
	logger.Info("partitioned context window", "pieces", len(pieces), "contextLength", len(window))

	// Step 7: iterate pieces — plan, generate, merge, report.
	state = stateGenerating
	merger := merge.New(mergeUseCase(useCase), merge.Config{
		MaxItemsPerPiece: o.maxItemsPerPiece(),
		MaxStepsPerPiece: o.maxStepsPerPiece(),
	})

	n := len(pieces)
	for i, piece := range pieces {
		pState := planner.PlannerState{
			TitleSet:         merger.HasTitle(),
			PrerequisitesSet: merger.HasPrerequisites(),
			StepCount:        merger.StepCount(),
		}
		role := planner.Plan(string(useCase), i, n, pState)
		system, user := planner.BuildPrompt(tmpl, piece, role, planner.Config{
			MaxItemsPerPiece: o.maxItemsPerPiece(),
			MaxStepsPerPiece: o.maxStepsPerPiece(),
		}, pState)

		raw, _, err := llm.GenerateJSON(ctx, chat, system, user, llm.GenerateOpts{
			Temperature:     o.temperature(),
			MaxOutputTokens: o.maxTokensPerPiece(),
			Retry:           llm.RetryConfig{MaxRetries: o.cfg.MaxRetries},
		})
		if err != nil {
			return nil, fmt.Errorf("manualrag: generating %s chunk %d of %d: %w", useCase, i+1, n, mapLLMError(err))
		}

		state = stateMerging
		if err := merger.Merge(raw, role, piece.Source); err != nil {
			return nil, fmt.Errorf("manualrag: merging %s chunk %d of %d: %w", useCase, i+1, n, err)
		}

		progressPct := progressPercent(useCase, i, n)
		options.reporter.Report(progress.Event{
			Step:     fmt.Sprintf("generating_%s_chunk_%d", useCase, i+1),
			Progress: progressPct,
			Message:  fmt.Sprintf("processed piece %d of %d (role: %s)", i+1, n, role),
		})
		state = stateGenerating
	}

	// Step 8: validate emptiness, apply missing-field repair.
	state = stateValidating
	merger.Repair()
	if merger.IsEmpty() {
		return nil, fmt.Errorf("manualrag: %w", ErrMergeEmpty)
	}

	// Step 9: assemble result.
	state = stateDone
	sources := refs.sources()
	result := &GenerationResult{
		UseCase:               useCase,
		DocumentIDs:           docIDs,
		Data:                  merger.Artifact(),
		ChunksUsed:            len(chunks),
		ContextLength:         len(window),
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		Sources:               sources,
		CitationText:          citationText(sources),
		GenerationMetadata: GenerationMetadata{
			GenerationID: generationID,
			Model:        fmt.Sprintf("%s/%s", providerName, o.cfg.Chat.Model),
		},
	}

	logger.Info("generation complete", "state", state, "pieces", n,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// resolveProvider substitutes the default chat provider and logs a warning
// if the caller asked for one the Orchestrator was not constructed with.
func (o *Orchestrator) resolveProvider(name string, logger *slog.Logger) (llm.Provider, string) {
	if name == "" {
		return o.chat, o.chatName
	}
	if p, ok := o.providers[name]; ok {
		return p, name
	}
	logger.Warn("requested llm provider unavailable, falling back to default",
		"requested", name, "default", o.chatName)
	return o.chat, o.chatName
}

// mapLLMError maps the llm package's sentinel errors onto this package's
// own, preserving the wrapped detail via errors.Is compatibility.
func mapLLMError(err error) error {
	switch {
	case errors.Is(err, llm.ErrTruncated):
		return fmt.Errorf("%w: %v", ErrLLMTruncated, err)
	case errors.Is(err, llm.ErrSafetyBlocked):
		return fmt.Errorf("%w: %v", ErrLLMSafetyBlocked, err)
	case errors.Is(err, llm.ErrMalformedJSON):
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	case errors.Is(err, llm.ErrTransient):
		return fmt.Errorf("%w: %v", ErrLLMTransient, err)
	default:
		return err
	}
}

func mergeUseCase(uc UseCase) merge.UseCase {
	if uc == UseCaseChecksheet {
		return merge.UseCaseChecksheet
	}
	return merge.UseCaseWorkInstructions
}

// progressPercent linearly maps piece i of n onto [10, 60] for work
// instructions and [10, 40] for checksheets, per SPEC_FULL.md §4.6.
func progressPercent(useCase UseCase, i, n int) int {
	lo, hi := 10, 40
	if useCase == UseCaseWorkInstructions {
		hi = 60
	}
	if n <= 1 {
		return hi
	}
	return lo + (hi-lo)*(i+1)/n
}

// buildContextWindow concatenates chunk texts with a two-newline delimiter,
// stopping before any chunk would push the window past maxChars — a chunk is
// either wholly included or wholly excluded. It also returns the position
// map and the source-reference map accumulated from accepted chunks.
func buildContextWindow(chunks []vectorstore.Chunk, maxChars int) (string, []partition.PositionEntry, *sourceRefMap) {
	const delimiter = "\n\n"

	var b strings.Builder
	var positions []partition.PositionEntry
	refs := newSourceRefMap()

	for _, c := range chunks {
		text := c.Text
		if strings.TrimSpace(text) == "" {
			continue
		}

		addition := text
		if b.Len() > 0 {
			addition = delimiter + text
		}
		if b.Len()+len(addition) > maxChars {
			break
		}

		start := b.Len()
		b.WriteString(addition)
		end := b.Len()

		src := partition.Source{
			FileName:   c.FileName,
			PageNumber: c.PageNumber,
			HasPage:    c.HasPage,
		}
		positions = append(positions, partition.PositionEntry{
			StartChar: start,
			EndChar:   end,
			Source:    src,
		})
		refs.add(c.FileName, c.PageNumber, c.HasPage)
	}

	return b.String(), positions, refs
}

func (o *Orchestrator) maxContextChars() int {
	if o.cfg.MaxContextChars > 0 {
		return o.cfg.MaxContextChars
	}
	return 4000
}

func (o *Orchestrator) partitionTargetChars() int {
	if o.cfg.PartitionTargetChars > 0 {
		return o.cfg.PartitionTargetChars
	}
	return 300
}

func (o *Orchestrator) minPieces() int {
	if o.cfg.MinPieces > 0 {
		return o.cfg.MinPieces
	}
	return 15
}

func (o *Orchestrator) maxItemsPerPiece() int {
	if o.cfg.MaxItemsPerPiece > 0 {
		return o.cfg.MaxItemsPerPiece
	}
	return 8
}

func (o *Orchestrator) maxStepsPerPiece() int {
	if o.cfg.MaxStepsPerPiece > 0 {
		return o.cfg.MaxStepsPerPiece
	}
	return 2
}

func (o *Orchestrator) maxTokensPerPiece() int {
	if o.cfg.MaxTokensPerPiece > 0 {
		return o.cfg.MaxTokensPerPiece
	}
	return 8000
}

func (o *Orchestrator) temperature() float64 {
	return o.cfg.Temperature
}

// Close releases the Orchestrator's vector store connection.
func (o *Orchestrator) Close() error {
	return o.store.Close()
}
