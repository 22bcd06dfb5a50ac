package merge

import (
	"testing"

	"github.com/wbaines/manualrag/partition"
	"github.com/wbaines/manualrag/planner"
)

func src(fileName string, page int, hasPage bool) partition.Source {
	return partition.Source{FileName: fileName, PageNumber: page, HasPage: hasPage}
}

func TestMergeChecksheetItemsBareArray(t *testing.T) {
	m := New(UseCaseChecksheet, Config{MaxItemsPerPiece: 8})

	raw := []byte(`[{"itemName":"Oil level","inspectionPoint":"Sight glass","frequency":"Daily","expectedStatus":"OK"}]`)
	if err := m.Merge(raw, planner.RoleChecksheetItems, src("A.pdf", 3, true)); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	cs := m.Artifact().(*Checksheet)
	if len(cs.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(cs.Items))
	}
	if cs.Items[0].SourceFile != "A.pdf" || cs.Items[0].SourcePage == nil || *cs.Items[0].SourcePage != 3 {
		t.Errorf("item attribution = %+v", cs.Items[0])
	}
}

func TestMergeChecksheetItemsWrappedObject(t *testing.T) {
	m := New(UseCaseChecksheet, Config{MaxItemsPerPiece: 8})

	raw := []byte(`{"items":[{"itemName":"Belt tension","inspectionPoint":"Drive belt","frequency":"Weekly","expectedStatus":"Taut"}]}`)
	if err := m.Merge(raw, planner.RoleChecksheetItems, src("A.pdf", 4, true)); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	cs := m.Artifact().(*Checksheet)
	if len(cs.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(cs.Items))
	}
}

func TestMergeChecksheetCapsAtMaxItemsPerPiece(t *testing.T) {
	m := New(UseCaseChecksheet, Config{MaxItemsPerPiece: 2})

	raw := []byte(`[{"itemName":"a"},{"itemName":"b"},{"itemName":"c"}]`)
	if err := m.Merge(raw, planner.RoleChecksheetItems, src("A.pdf", 1, true)); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	cs := m.Artifact().(*Checksheet)
	if len(cs.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2 (capped)", len(cs.Items))
	}
}

func TestMergeStepsRenumberedContiguously(t *testing.T) {
	m := New(UseCaseWorkInstructions, Config{MaxStepsPerPiece: 2})

	if err := m.Merge([]byte(`{"steps":[{"stepNumber":1,"description":"first"},{"stepNumber":2,"description":"second"}]}`),
		planner.RoleSteps, src("M.pdf", 1, true)); err != nil {
		t.Fatalf("Merge piece 1: %v", err)
	}
	if err := m.Merge([]byte(`{"steps":[{"stepNumber":"3","description":"third"}]}`),
		planner.RoleSteps, src("M.pdf", 2, true)); err != nil {
		t.Fatalf("Merge piece 2 (string stepNumber): %v", err)
	}

	wi := m.Artifact().(*WorkInstructions)
	if len(wi.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(wi.Steps))
	}
	for i, step := range wi.Steps {
		if step.StepNumber != i+1 {
			t.Errorf("Steps[%d].StepNumber = %d, want %d", i, step.StepNumber, i+1)
		}
	}
}

func TestMergePrerequisitesUnionDeduped(t *testing.T) {
	m := New(UseCaseWorkInstructions, Config{})

	m.Merge([]byte(`{"prerequisites":{"tools":["10mm wrench","pliers"]}}`), planner.RolePrerequisites, src("M.pdf", 1, true))
	m.Merge([]byte(`{"prerequisites":{"tools":["pliers","torque wrench"]}}`), planner.RolePrerequisites, src("M.pdf", 1, true))

	wi := m.Artifact().(*WorkInstructions)
	want := []string{"10mm wrench", "pliers", "torque wrench"}
	if len(wi.Prerequisites.Tools) != len(want) {
		t.Fatalf("Tools = %v, want %v", wi.Prerequisites.Tools, want)
	}
	for i, w := range want {
		if wi.Prerequisites.Tools[i] != w {
			t.Errorf("Tools[%d] = %q, want %q", i, wi.Prerequisites.Tools[i], w)
		}
	}
}

func TestMergeTitleOverviewAcceptedOnlyOnce(t *testing.T) {
	m := New(UseCaseWorkInstructions, Config{})

	m.Merge([]byte(`{"title":"Pump Inspection","overview":"first"}`), planner.RoleTitleOverview, src("M.pdf", 1, true))
	m.Merge([]byte(`{"title":"Other Title","overview":"second"}`), planner.RoleTitleOverview, src("M.pdf", 1, true))

	wi := m.Artifact().(*WorkInstructions)
	if wi.Title != "Pump Inspection" {
		t.Errorf("Title = %q, want first-set value %q", wi.Title, "Pump Inspection")
	}
	if wi.Overview != "first" {
		t.Errorf("Overview = %q, want %q", wi.Overview, "first")
	}
}

func TestMergeSafetyChecklistDedupedByText(t *testing.T) {
	m := New(UseCaseWorkInstructions, Config{})

	raw := []byte(`{"safetyWarnings":[{"text":"Wear gloves"},{"text":"Wear gloves"}],"completionChecklist":[{"text":"Verify torque"}]}`)
	if err := m.Merge(raw, planner.RoleSafetyChecklist, src("M.pdf", 9, true)); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	wi := m.Artifact().(*WorkInstructions)
	if len(wi.SafetyWarnings) != 1 {
		t.Fatalf("len(SafetyWarnings) = %d, want 1 (deduped)", len(wi.SafetyWarnings))
	}
	if len(wi.CompletionChecklist) != 1 {
		t.Fatalf("len(CompletionChecklist) = %d, want 1", len(wi.CompletionChecklist))
	}
}

func TestMergeEmptyAndRepair(t *testing.T) {
	m := New(UseCaseWorkInstructions, Config{})
	if !m.IsEmpty() {
		t.Fatal("new merger should be empty")
	}

	m.Merge([]byte(`{"prerequisites":{"tools":["wrench"]}}`), planner.RolePrerequisites, src("M.pdf", 1, true))
	if m.IsEmpty() {
		t.Fatal("merger with prerequisites merged should not be empty")
	}

	m.Repair()
	wi := m.Artifact().(*WorkInstructions)
	if wi.Title != "Work Instructions" {
		t.Errorf("Title after repair = %q, want fallback %q", wi.Title, "Work Instructions")
	}
}

func TestMergeRepairNoOpWhenEmpty(t *testing.T) {
	m := New(UseCaseWorkInstructions, Config{})
	m.Repair()
	if !m.IsEmpty() {
		t.Fatal("Repair must not manufacture content for a genuinely empty artifact")
	}
}

func TestMergeIdempotentForEmptyThenX(t *testing.T) {
	raw := []byte(`{"steps":[{"stepNumber":1,"description":"only step"}]}`)

	m1 := New(UseCaseWorkInstructions, Config{MaxStepsPerPiece: 5})
	m1.Merge([]byte(`{}`), planner.RoleSteps, src("M.pdf", 1, true))
	m1.Merge(raw, planner.RoleSteps, src("M.pdf", 1, true))

	m2 := New(UseCaseWorkInstructions, Config{MaxStepsPerPiece: 5})
	m2.Merge(raw, planner.RoleSteps, src("M.pdf", 1, true))

	wi1 := m1.Artifact().(*WorkInstructions)
	wi2 := m2.Artifact().(*WorkInstructions)
	if len(wi1.Steps) != len(wi2.Steps) {
		t.Fatalf("merging empty-then-X produced %d steps, want %d (merging X alone)", len(wi1.Steps), len(wi2.Steps))
	}
}

func TestAttributionFromMissingPage(t *testing.T) {
	attr := attributionFrom(src("M.pdf", 0, false))
	if attr.SourcePage != nil {
		t.Errorf("SourcePage = %v, want nil when HasPage=false", attr.SourcePage)
	}
	if attr.SourceFile != "M.pdf" {
		t.Errorf("SourceFile = %q, want %q", attr.SourceFile, "M.pdf")
	}
}

func TestAttributionFromUnknownFile(t *testing.T) {
	attr := attributionFrom(partition.Source{})
	if attr.SourceFile != "Unknown" {
		t.Errorf("SourceFile = %q, want %q", attr.SourceFile, "Unknown")
	}
}
