// Package partition implements the Context Partitioner: it cuts a bounded
// context window into many small, source-attributed pieces so that each
// sub-request handed to the LLM Adapter stays comfortably below any
// single-call output-token ceiling. It is a pure function package with no
// I/O, grounded in the teacher's preference for small, independently
// testable helpers (retrieval/rrf.go's fuseRRF is the same shape: data in,
// data out, no side effects).
package partition

import "strings"

// Source is the provenance a piece inherits from the chunk whose byte range
// produced it.
type Source struct {
	FileName   string
	PageNumber int
	HasPage    bool
}

// PositionEntry records which chunk produced window[StartChar:EndChar].
// Entries are non-overlapping, contiguous, and sorted by StartChar.
type PositionEntry struct {
	StartChar int
	EndChar   int
	Source    Source
}

// Piece is one slice of the context window, annotated with the source of
// the chunk that overlaps its start offset.
type Piece struct {
	Text      string
	StartChar int
	EndChar   int
	Source    Source
}

// Config controls piece sizing.
type Config struct {
	// TargetChars is the approximate size of each piece.
	TargetChars int
	// MinPieces is the floor on the number of pieces produced, regardless
	// of how small the context window is.
	//
	// TODO: for small windows this floor can produce pieces too thin to
	// carry a useful LLM call; the spec's literal end-to-end scenarios pin
	// the unconditional floor (see SPEC_FULL.md §9), so no escape hatch is
	// implemented here.
	MinPieces int
}

// Partition splits window into N = max(cfg.MinPieces, ceil(len(window) /
// cfg.TargetChars)) roughly equal slices, each annotated with the source of
// the position-map entry overlapping its start offset. Empty or
// whitespace-only slices are dropped, so the returned count may be smaller
// than N when the window is shorter than N characters or contains
// whitespace-only stretches at least a slice long.
func Partition(window string, positions []PositionEntry, cfg Config) []Piece {
	if len(window) == 0 {
		return nil
	}

	target := cfg.TargetChars
	if target <= 0 {
		target = 300
	}
	minPieces := cfg.MinPieces
	if minPieces <= 0 {
		minPieces = 15
	}

	n := (len(window) + target - 1) / target
	if n < minPieces {
		n = minPieces
	}
	if n < 1 {
		n = 1
	}

	pieces := make([]Piece, 0, n)
	for i := 0; i < n; i++ {
		start := i * len(window) / n
		end := (i + 1) * len(window) / n
		text := window[start:end]
		if strings.TrimSpace(text) == "" {
			continue
		}
		pieces = append(pieces, Piece{
			Text:      text,
			StartChar: start,
			EndChar:   end,
			Source:    sourceAt(positions, start),
		})
	}
	return pieces
}

// sourceAt locates the position-map entry containing offset and returns its
// source. If none contains it, it falls back to the first entry's source
// (SPEC_FULL.md §4.3); if positions is empty, the zero Source is returned
// and the caller treats it as "Unknown".
func sourceAt(positions []PositionEntry, offset int) Source {
	for _, p := range positions {
		if offset >= p.StartChar && offset < p.EndChar {
			return p.Source
		}
	}
	if len(positions) > 0 {
		return positions[0].Source
	}
	return Source{}
}
