package promptlib

// defaultPrompt returns the built-in prompt pair for useCase. These are the
// templates every generation falls back to absent a caller-defined prompt
// (§1: the Prompt Library's CRUD store is an external collaborator this
// module never implements).
func defaultPrompt(useCase string) Prompt {
	switch useCase {
	case "checksheet":
		return Prompt{
			ID:     "default-checksheet",
			Name:   "Default Checksheet",
			System: checksheetSystemPrompt,
			UserTemplate: "Extract inspection checklist items from the following excerpt of a " +
				"maintenance manual.\n\n{context}",
		}
	default: // "work_instructions" and anything unrecognized
		return Prompt{
			ID:     "default-work-instructions",
			Name:   "Default Work Instructions",
			System: workInstructionsSystemPrompt,
			UserTemplate: "Extract step-by-step work instructions from the following excerpt of a " +
				"maintenance manual.\n\n{context}",
		}
	}
}

const checksheetSystemPrompt = `You produce inspection checksheet items for maintenance technicians from ` +
	`short excerpts of a manual. Respond with JSON only, no commentary, no markdown fence. ` +
	`Every item must be grounded in the excerpt; never invent equipment or steps not mentioned.`

const workInstructionsSystemPrompt = `You produce step-by-step work instructions for maintenance technicians ` +
	`from short excerpts of a manual. Respond with JSON only, no commentary, no markdown fence. ` +
	`Every field must be grounded in the excerpt; never invent equipment, tools, or steps not mentioned.`
