package renderassets

import (
	"fmt"
	"regexp"
	"strings"

	"genieops-engine/internal/models"
)

const DefaultLinkedInPost = "New tool released!"

var (
	mappingKeyFragment = regexp.MustCompile(`\{[^{}]*?:`)
	mappingLeftovers   = strings.NewReplacer("{", "", "}", "", `"`, "")
)

// SanitizeLinkedIn turns whatever the model produced for the social post into plain text.
func SanitizeLinkedIn(post interface{}) string {
	var text string
	switch v := post.(type) {
	case nil:
	case string:
		text = v
	case map[string]interface{}:
		text = models.PlainText(v)
	default:
		text = fmt.Sprint(v)
	}

	text = mappingKeyFragment.ReplaceAllString(text, "")
	text = strings.TrimSpace(mappingLeftovers.Replace(text))
	if text == "" {
		return DefaultLinkedInPost
	}
	return text
}
