package buildfunnelcontent

import "time"

type Config struct {
	Model   string
	Timeout time.Duration
}
