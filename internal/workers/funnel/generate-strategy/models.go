package generatestrategy

import "genieops-engine/internal/models"

type Input struct {
	Brief       models.Brief `json:"brief"`
	AvoidTopics []string     `json:"avoidTopics,omitempty"`
}

type Output struct {
	Theme models.StrategyTheme `json:"theme"`
}
