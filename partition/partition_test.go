package partition

import (
	"strings"
	"testing"
)

func TestPartitionMinPiecesFloor(t *testing.T) {
	window := strings.Repeat("x", 1200)
	positions := []PositionEntry{
		{StartChar: 0, EndChar: 1200, Source: Source{FileName: "A.pdf", PageNumber: 3, HasPage: true}},
	}

	pieces := Partition(window, positions, Config{TargetChars: 300, MinPieces: 15})

	if len(pieces) != 15 {
		t.Fatalf("len(pieces) = %d, want 15", len(pieces))
	}

	var rebuilt strings.Builder
	for _, p := range pieces {
		rebuilt.WriteString(p.Text)
	}
	if rebuilt.String() != window {
		t.Errorf("concatenated piece texts do not equal the window")
	}
}

func TestPartitionScalesAboveFloor(t *testing.T) {
	window := strings.Repeat("y", 9000)
	pieces := Partition(window, nil, Config{TargetChars: 300, MinPieces: 15})

	want := (len(window) + 299) / 300
	if len(pieces) != want {
		t.Fatalf("len(pieces) = %d, want %d", len(pieces), want)
	}
}

func TestPartitionEmptyWindow(t *testing.T) {
	pieces := Partition("", nil, Config{})
	if pieces != nil {
		t.Errorf("expected nil pieces for empty window, got %v", pieces)
	}
}

func TestPartitionSourceFallbackToFirstEntry(t *testing.T) {
	window := strings.Repeat("z", 600)
	positions := []PositionEntry{
		{StartChar: 100, EndChar: 600, Source: Source{FileName: "B.pdf"}},
	}

	pieces := Partition(window, positions, Config{TargetChars: 300, MinPieces: 2})

	// The first piece starts at offset 0, which no position entry covers, so
	// it falls back to the first entry's source.
	if pieces[0].Source.FileName != "B.pdf" {
		t.Errorf("pieces[0].Source.FileName = %q, want %q", pieces[0].Source.FileName, "B.pdf")
	}
}

func TestPartitionSourceFallbackNoEntries(t *testing.T) {
	pieces := Partition(strings.Repeat("w", 100), nil, Config{TargetChars: 300, MinPieces: 1})
	if pieces[0].Source != (Source{}) {
		t.Errorf("expected zero Source when no position entries exist, got %+v", pieces[0].Source)
	}
}

func TestPartitionDropsWhitespaceOnlyPieces(t *testing.T) {
	window := strings.Repeat("a", 10) + strings.Repeat(" ", 10) + strings.Repeat("b", 10)
	pieces := Partition(window, nil, Config{TargetChars: 10, MinPieces: 3})

	for _, p := range pieces {
		if strings.TrimSpace(p.Text) == "" {
			t.Errorf("piece %+v is whitespace-only and should have been dropped", p)
		}
	}
}
