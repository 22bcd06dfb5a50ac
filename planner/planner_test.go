package planner

import (
	"strings"
	"testing"

	"github.com/wbaines/manualrag/partition"
	"github.com/wbaines/manualrag/promptlib"
)

func TestPlanChecksheetAlwaysSymmetric(t *testing.T) {
	for i := 0; i < 15; i++ {
		role := Plan("checksheet", i, 15, PlannerState{})
		if role != RoleChecksheetItems {
			t.Errorf("Plan(checksheet, %d, 15, ...) = %v, want RoleChecksheetItems", i, role)
		}
	}
}

func TestPlanWorkInstructions15Pieces(t *testing.T) {
	// Mirrors the literal "work instructions merge" scenario: 15 pieces,
	// title (0), prerequisites (1), steps (2..13, 12 pieces), safety+checklist
	// on the last once steps are non-empty.
	state := PlannerState{}
	var roles []Role

	for i := 0; i < 15; i++ {
		role := Plan("work_instructions", i, 15, state)
		roles = append(roles, role)

		switch role {
		case RoleTitleOverview:
			state.TitleSet = true
		case RolePrerequisites:
			state.PrerequisitesSet = true
		case RoleSteps:
			state.StepCount += 2
		}
	}

	if roles[0] != RoleTitleOverview {
		t.Errorf("roles[0] = %v, want RoleTitleOverview", roles[0])
	}
	if roles[1] != RolePrerequisites {
		t.Errorf("roles[1] = %v, want RolePrerequisites", roles[1])
	}
	for i := 2; i < 14; i++ {
		if roles[i] != RoleSteps {
			t.Errorf("roles[%d] = %v, want RoleSteps", i, roles[i])
		}
	}
	if roles[14] != RoleSafetyChecklist {
		t.Errorf("roles[14] = %v, want RoleSafetyChecklist", roles[14])
	}
	if state.StepCount != 24 {
		t.Errorf("accumulated StepCount = %d, want 24", state.StepCount)
	}
}

func TestPlanWorkInstructionsLastPieceWithNoStepsYet(t *testing.T) {
	// A pathologically short generation (2 pieces): last piece with zero
	// steps accumulated must still request steps, not safety+checklist.
	role := Plan("work_instructions", 1, 2, PlannerState{TitleSet: true, PrerequisitesSet: true})
	if role != RoleSteps {
		t.Errorf("Plan(..., last, StepCount=0) = %v, want RoleSteps", role)
	}
}

func TestPlanWorkInstructionsPrerequisitesOnFirstPieceWhenTitleAlreadySet(t *testing.T) {
	role := Plan("work_instructions", 0, 5, PlannerState{TitleSet: true})
	if role != RolePrerequisites {
		t.Errorf("Plan(..., 0, ..., TitleSet=true) = %v, want RolePrerequisites", role)
	}
}

func TestBuildPromptSubstitutesContextAndCaps(t *testing.T) {
	tmpl := promptlib.Prompt{System: "sys", UserTemplate: "Context:\n{context}\nInclude: placeholder"}
	piece := partition.Piece{Text: "hydraulic pump inspection excerpt"}

	system, user := BuildPrompt(tmpl, piece, RoleChecksheetItems, Config{MaxItemsPerPiece: 8}, PlannerState{})

	if system != "sys" {
		t.Errorf("system = %q, want %q", system, "sys")
	}
	for _, want := range []string{piece.Text, "up to 8", "Example JSON:"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q: %q", want, user)
		}
	}
}
