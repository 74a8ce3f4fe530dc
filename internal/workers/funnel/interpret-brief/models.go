package interpretbrief

import "genieops-engine/internal/models"

type Input struct {
	Prompt string `json:"prompt"`
}

type Output struct {
	Brief models.Brief `json:"brief"`
}
