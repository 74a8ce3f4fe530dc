package generatestrategy

import "time"

type Config struct {
	Model   string
	Timeout time.Duration
}
