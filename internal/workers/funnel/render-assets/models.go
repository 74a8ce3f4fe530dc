package renderassets

import "genieops-engine/internal/models"

type Input struct {
	FunnelID int64                `json:"funnelId"`
	Content  *models.AssetContent `json:"content"`
	Theme    models.StrategyTheme `json:"theme"`
	Images   models.Images        `json:"images"`
}

type Output struct {
	Rendered *models.RenderedAsset `json:"rendered"`
}
