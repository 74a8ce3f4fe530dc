package fetchimages

import "genieops-engine/internal/models"

type Input struct {
	ICP            string `json:"icp"`
	BgKeyword      string `json:"bgKeyword"`
	ImageKeyword   string `json:"imageKeyword"`
	LiImageKeyword string `json:"liImageKeyword"`
}

type Output struct {
	Images models.Images `json:"images"`
}
