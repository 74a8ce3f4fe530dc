package renderassets

import "time"

type Config struct {
	// CaptureURL is where the landing page form posts a lead.
	CaptureURL string
	UpgradeURL string
	Timeout    time.Duration
}
