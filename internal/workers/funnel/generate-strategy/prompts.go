package generatestrategy

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a High-End UX Director. You are CRITICAL. You ONLY speak in JSON."

const contractSchema = `{
	"type": "object",
	"anyOf": [
		{"required": ["asset_type"]},
		{"required": ["type"]}
	],
	"properties": {
		"title": {"type": ["string", "object", "null"]},
		"asset_type": {"type": "string"},
		"type": {"type": "string"},
		"conversion_score": {"type": ["number", "string", "null"]},
		"primary_hex": {"type": ["string", "null"]},
		"primary_color": {"type": ["string", "null"]}
	}
}`

func buildUserPrompt(input *Input) string {
	avoid := "None"
	topics := append([]string{}, input.Brief.ExistingTopics...)
	topics = append(topics, input.AvoidTopics...)
	if len(topics) > 0 {
		avoid = strings.Join(dedupe(topics), "; ")
	}

	return fmt.Sprintf(`Analyze project: %s | %s.
Offer: %s. Goal: %s.
Existing Assets to Avoid: %s.

SCORING RULES:
- conversion_score: Give a REALISTIC percentage (70-98).
- Lower the score if the niche is crowded or the pain point is vague.

Return ONLY JSON: {
  "title": "catchy unique title",
  "type": "Calculator, Checklist, or Report",
  "value_promise": "one line promise",
  "conversion_score": integer_based_on_complexity,
  "primary_hex": "muted hex",
  "bg_keyword": "room interior",
  "image_keyword": "object",
  "li_image_keyword": "success scene"
}`,
		input.Brief.ICPProfile,
		input.Brief.PainPoints,
		orNone(input.Brief.OfferType),
		orNone(input.Brief.ConversionGoal),
		avoid,
	)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
