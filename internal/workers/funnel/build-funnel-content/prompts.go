package buildfunnelcontent

import (
	"fmt"

	"genieops-engine/internal/models"
)

const contractSchema = `{
	"type": "object",
	"properties": {
		"features": {"type": ["array", "null"]},
		"emails": {
			"type": ["array", "null"],
			"items": {"type": ["object", "string"]}
		},
		"asset_logic": {"type": ["object", "null"]},
		"linkedin_post": {"type": ["string", "object", "null"]}
	}
}`

func buildSystemPrompt(voice, goal string) string {
	return fmt.Sprintf("You are a Senior Copywriter & Logic Engineer. Voice: %s. Goal: %s. ONLY JSON.", voice, goal)
}

var logicShapes = map[models.AssetType]string{
	models.AssetCalculator: `{"input_label": "what the reader types in", "multiplier": 1.5, "unit": "$", "result_label": "what the number means"}`,
	models.AssetChecklist:  `{"tips": ["tip1", "tip2", "tip3"]}`,
	models.AssetReport:     `{"summary": "one paragraph", "data_points": [{"label": "metric", "value": 0-100}]}`,
}

func buildUserPrompt(input *Input) string {
	return fmt.Sprintf(`Build funnel assets for '%s' targeting %s.

1. PAS COPY: Write a PAS Headline (max 8 words), an Agitation paragraph (30 words), and 3 Feature solutions.
2. SOCIAL: Write a 150-word LinkedIn story as plain text. Include link: %s.
3. NURTURE: Write 3 emails.
4. ASSET LOGIC for a %s: %s

Return ONLY JSON: {
  "headline": "", "sub": "", "agitation": "", "features": [], "why_us": "",
  "linkedin_post": "", "upgrade_offer_copy": "",
  "emails": [{"subject": "", "body": ""}],
  "asset_logic": {}
}`,
		input.Title,
		input.ICP,
		input.CallbackURL,
		input.AssetType,
		logicShapes[input.AssetType],
	)
}
