package interpretbrief

import "fmt"

const systemPrompt = "You are a Senior Marketing Analyst. Extract a marketing brief from the conversation " +
	"and list any assets the user says they already have. You ONLY answer with a single JSON object."

const contractSchema = `{
	"type": "object",
	"anyOf": [
		{"required": ["icp_profile"]},
		{"required": ["icp"]}
	],
	"properties": {
		"icp_profile": {"type": ["string", "object"]},
		"existing_topics": {"type": ["array", "string", "null"]}
	}
}`

func buildUserPrompt(prompt string) string {
	return fmt.Sprintf(`Chat: %s

Return ONLY JSON with these keys:
{
  "icp_profile": "who the ideal customer is",
  "pain_points": "what hurts them",
  "brand_voice": "tone to write in",
  "offer_type": "what is being sold",
  "conversion_goal": "what a lead should do next",
  "existing_topics": ["titles of assets the user already has"]
}`, prompt)
}
