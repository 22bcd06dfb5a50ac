package manualrag

import "errors"

var (
	// ErrNoDocumentsIngested is returned when retrieval over the given
	// document IDs returns zero chunks. User-actionable: the caller should
	// check that the documents were ingested before generating against them.
	ErrNoDocumentsIngested = errors.New("manualrag: no documents ingested for the given IDs")

	// ErrEmptyContext is returned when retrieval returned chunks but every
	// one had empty or whitespace-only text.
	ErrEmptyContext = errors.New("manualrag: retrieved context is empty")

	// ErrLLMTruncated is returned when a generation sub-request's output
	// was cut off by the model's token ceiling before valid JSON completed.
	ErrLLMTruncated = errors.New("manualrag: LLM output truncated")

	// ErrLLMSafetyBlocked is returned when the LLM provider refused to
	// generate content for the sub-request.
	ErrLLMSafetyBlocked = errors.New("manualrag: LLM response blocked")

	// ErrLLMTransient is returned for retryable provider failures (rate
	// limits, timeouts, 5xx responses) that exhausted their retry budget.
	ErrLLMTransient = errors.New("manualrag: LLM request failed transiently")

	// ErrInvalidJSON is returned when a sub-request's output could not be
	// parsed as JSON even after fence stripping and boundary isolation.
	ErrInvalidJSON = errors.New("manualrag: LLM output is not valid JSON")

	// ErrMergeEmpty is returned when merging all sub-request outputs
	// together still yields zero top-level elements.
	ErrMergeEmpty = errors.New("manualrag: merged artifact has no elements")

	// ErrInvalidInput is returned for caller errors: empty docIDs,
	// unrecognized use case, a missing vector store, and the like. A
	// non-positive topK is not an error; Generate replaces it with 10.
	ErrInvalidInput = errors.New("manualrag: invalid input")
)
