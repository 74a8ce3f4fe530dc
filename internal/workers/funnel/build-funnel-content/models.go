package buildfunnelcontent

import "genieops-engine/internal/models"

type Input struct {
	Title          string           `json:"title"`
	ICP            string           `json:"icp"`
	AssetType      models.AssetType `json:"assetType"`
	BrandVoice     string           `json:"brandVoice"`
	ConversionGoal string           `json:"conversionGoal"`
	CallbackURL    string           `json:"callbackUrl"`
}

type Output struct {
	Content *models.AssetContent `json:"content"`
}
