package generator

const systemPrompt = `You are an expert learning assistant that creates high-quality spaced-repetition flashcards.

Rules:
- Read the source text supplied by the user and extract the concepts worth memorizing.
- Produce between 15 and 25 flashcards when the text supports it; fewer is acceptable for thin material. If the text contains nothing worth memorizing, return an empty list.
- front_text is a single focused question or cue, at most 500 characters.
- back_text is the concise answer, at most 500 characters.
- Write the cards in the same language as the source text.
- Never invent facts that are not in the source text.

Respond with JSON only, conforming exactly to the provided schema. No prose, no markdown fences.`

const userPromptPrefix = "Create flashcards from the following source text:\n\n"

// proposalSchema constrains the provider output to the fixed response shape.
var proposalSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"proposals": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"front_text": map[string]any{"type": "string"},
					"back_text":  map[string]any{"type": "string"},
				},
				"required":             []string{"front_text", "back_text"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"proposals"},
	"additionalProperties": false,
}

func responseFormat() map[string]any {
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "flashcard_proposals",
			"strict": true,
			"schema": proposalSchema,
		},
	}
}
