package manualrag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/wbaines/manualrag/llm"
	"github.com/wbaines/manualrag/merge"
	"github.com/wbaines/manualrag/promptlib"
	"github.com/wbaines/manualrag/vectorstore"
)

// stubStore is a fake vectorstore.Store backed by an in-memory chunk slice,
// used in place of a real SQLite/Qdrant backend so generation tests run
// without any external dependency.
type stubStore struct {
	chunks []vectorstore.Chunk
}

func (s *stubStore) QueryByDocumentIDs(ctx context.Context, docIDs []string, queryText string, topK int) ([]vectorstore.Chunk, error) {
	if len(s.chunks) > topK {
		return s.chunks[:topK], nil
	}
	return s.chunks, nil
}

func (s *stubStore) Upsert(ctx context.Context, doc vectorstore.Document, chunks []vectorstore.IngestedChunk, embeddings [][]float32) error {
	return nil
}

func (s *stubStore) Close() error { return nil }

// stubProvider is a fake llm.Provider whose Chat response is derived from a
// caller-supplied function, letting each test script exactly what each call
// returns (content, finish reason) and count how many calls were made.
type stubProvider struct {
	calls   int32
	respond func(callIndex int) (llm.ChatResponse, error)
}

func (p *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	idx := int(atomic.AddInt32(&p.calls, 1)) - 1
	resp, err := p.respond(idx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0, 0, 0}
	}
	return out, nil
}

func (p *stubProvider) callCount() int { return int(atomic.LoadInt32(&p.calls)) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	return cfg
}

func checksheetItemResponse(i int) llm.ChatResponse {
	return llm.ChatResponse{
		Content:      fmt.Sprintf(`{"items":[{"itemName":"Item %d","inspectionPoint":"Point %d","frequency":"Daily","expectedStatus":"OK"}]}`, i, i),
		FinishReason: "stop",
	}
}

func TestGenerateHappyPathChecksheet(t *testing.T) {
	store := &stubStore{chunks: []vectorstore.Chunk{
		{Text: strings.Repeat("a", 400), FileName: "A.pdf", PageNumber: 3, HasPage: true},
		{Text: strings.Repeat("b", 400), FileName: "A.pdf", PageNumber: 4, HasPage: true},
		{Text: strings.Repeat("c", 400), FileName: "A.pdf", PageNumber: 5, HasPage: true},
	}}
	provider := &stubProvider{respond: func(i int) (llm.ChatResponse, error) {
		return checksheetItemResponse(i), nil
	}}

	orch := newTestOrchestrator(t, store, provider)

	result, err := orch.Generate(context.Background(), []string{"doc-A"}, UseCaseChecksheet)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if provider.callCount() != 15 {
		t.Fatalf("llm calls = %d, want 15", provider.callCount())
	}
	if result.ContextLength != 1204 {
		t.Errorf("ContextLength = %d, want 1204 (3×400 chars plus two 2-char delimiters)", result.ContextLength)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "A.pdf (Pages 3, 4, 5)" {
		t.Errorf("Sources = %v, want [%q]", result.Sources, "A.pdf (Pages 3, 4, 5)")
	}
	if result.CitationText != "1. A.pdf (Pages 3, 4, 5)" {
		t.Errorf("CitationText = %q", result.CitationText)
	}
}

func TestGenerateTruncationFailsFast(t *testing.T) {
	store := &stubStore{chunks: []vectorstore.Chunk{
		{Text: strings.Repeat("a", 1200), FileName: "A.pdf", PageNumber: 1, HasPage: true},
	}}
	provider := &stubProvider{respond: func(i int) (llm.ChatResponse, error) {
		return llm.ChatResponse{Content: "", FinishReason: "MAX_TOKENS"}, nil
	}}

	orch := newTestOrchestrator(t, store, provider)

	_, err := orch.Generate(context.Background(), []string{"doc-A"}, UseCaseChecksheet)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrLLMTruncated) {
		t.Errorf("error = %v, want ErrLLMTruncated", err)
	}
	if !strings.Contains(err.Error(), "chunk 1 of") {
		t.Errorf("error message %q missing piece index", err.Error())
	}
	if provider.callCount() != 1 {
		t.Fatalf("llm calls = %d, want exactly 1 (no retry on truncation)", provider.callCount())
	}
}

func TestGenerateEmptyRetrieval(t *testing.T) {
	store := &stubStore{}
	provider := &stubProvider{respond: func(i int) (llm.ChatResponse, error) {
		t.Fatal("no LLM call should be issued when retrieval is empty")
		return llm.ChatResponse{}, nil
	}}

	orch := newTestOrchestrator(t, store, provider)

	_, err := orch.Generate(context.Background(), []string{"doc-A"}, UseCaseChecksheet)
	if !errors.Is(err, ErrNoDocumentsIngested) {
		t.Errorf("error = %v, want ErrNoDocumentsIngested", err)
	}
}

func TestGenerateWorkInstructionsMerge(t *testing.T) {
	store := &stubStore{chunks: []vectorstore.Chunk{
		{Text: strings.Repeat("a", 1200), FileName: "M.pdf", PageNumber: 1, HasPage: true},
	}}

	provider := &stubProvider{respond: func(i int) (llm.ChatResponse, error) {
		switch {
		case i == 0:
			return llm.ChatResponse{Content: `{"title":"Pump Inspection","overview":"overview text"}`, FinishReason: "stop"}, nil
		case i == 1:
			return llm.ChatResponse{Content: `{"prerequisites":{"tools":["wrench","wrench"]}}`, FinishReason: "stop"}, nil
		case i == 14:
			return llm.ChatResponse{Content: `{"safetyWarnings":[{"text":"Wear gloves"}],"completionChecklist":[{"text":"Verify torque"}]}`, FinishReason: "stop"}, nil
		default:
			n := (i-2)*2 + 1
			return llm.ChatResponse{
				Content:      fmt.Sprintf(`{"steps":[{"stepNumber":%d,"description":"step %d"},{"stepNumber":%d,"description":"step %d"}]}`, n, n, n+1, n+1),
				FinishReason: "stop",
			}, nil
		}
	}}

	orch := newTestOrchestrator(t, store, provider)

	result, err := orch.Generate(context.Background(), []string{"doc-M"}, UseCaseWorkInstructions)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wi := result.Data.(*merge.WorkInstructions)
	if wi.Title != "Pump Inspection" {
		t.Errorf("Title = %q, want %q", wi.Title, "Pump Inspection")
	}
	if len(wi.Steps) != 24 {
		t.Fatalf("len(Steps) = %d, want 24", len(wi.Steps))
	}
	for i, step := range wi.Steps {
		if step.StepNumber != i+1 {
			t.Errorf("Steps[%d].StepNumber = %d, want %d", i, step.StepNumber, i+1)
		}
	}
	if len(wi.Prerequisites.Tools) != 1 || wi.Prerequisites.Tools[0] != "wrench" {
		t.Errorf("Prerequisites.Tools = %v, want deduped [wrench]", wi.Prerequisites.Tools)
	}
	if len(wi.SafetyWarnings) != 1 || len(wi.CompletionChecklist) != 1 {
		t.Errorf("SafetyWarnings/CompletionChecklist not merged as expected: %+v / %+v", wi.SafetyWarnings, wi.CompletionChecklist)
	}

	if provider.callCount() != 15 {
		t.Fatalf("llm calls = %d, want 15", provider.callCount())
	}
}

func TestGenerateMissingPageNumbers(t *testing.T) {
	store := &stubStore{chunks: []vectorstore.Chunk{
		{Text: strings.Repeat("a", 1200), FileName: "A.pdf", HasPage: false},
	}}
	provider := &stubProvider{respond: func(i int) (llm.ChatResponse, error) {
		return checksheetItemResponse(i), nil
	}}

	orch := newTestOrchestrator(t, store, provider)

	result, err := orch.Generate(context.Background(), []string{"doc-A"}, UseCaseChecksheet)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "A.pdf" {
		t.Errorf("Sources = %v, want [%q] (no page parenthetical)", result.Sources, "A.pdf")
	}
}

func TestGenerateSafetyBlockSurfaces(t *testing.T) {
	store := &stubStore{chunks: []vectorstore.Chunk{
		{Text: strings.Repeat("a", 1200), FileName: "A.pdf", PageNumber: 1, HasPage: true},
	}}
	provider := &stubProvider{respond: func(i int) (llm.ChatResponse, error) {
		if i == 6 {
			return llm.ChatResponse{Content: "", FinishReason: "SAFETY"}, nil
		}
		return checksheetItemResponse(i), nil
	}}

	orch := newTestOrchestrator(t, store, provider)

	_, err := orch.Generate(context.Background(), []string{"doc-A"}, UseCaseChecksheet)
	if !errors.Is(err, ErrLLMSafetyBlocked) {
		t.Errorf("error = %v, want ErrLLMSafetyBlocked", err)
	}
	if provider.callCount() != 7 {
		t.Fatalf("llm calls = %d, want 7", provider.callCount())
	}
}

func TestGenerateInvalidInput(t *testing.T) {
	orch := newTestOrchestrator(t, &stubStore{}, &stubProvider{respond: func(i int) (llm.ChatResponse, error) {
		return llm.ChatResponse{}, nil
	}})

	if _, err := orch.Generate(context.Background(), nil, UseCaseChecksheet); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty docIDs: error = %v, want ErrInvalidInput", err)
	}
	if _, err := orch.Generate(context.Background(), []string{"doc-A"}, UseCase("bogus")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown use case: error = %v, want ErrInvalidInput", err)
	}
}

func newTestOrchestrator(t *testing.T, store vectorstore.Store, chat llm.Provider) *Orchestrator {
	t.Helper()
	orch := &Orchestrator{
		store:     store,
		providers: map[string]llm.Provider{"stub": chat},
		chat:      chat,
		chatName:  "stub",
		prompts:   promptlib.New(nil),
		cfg:       testConfig(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return orch
}
