package emailsend

import "time"

type Input struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Output struct {
	Success  bool      `json:"success"`
	Provider string    `json:"provider"`
	SentAt   time.Time `json:"sentAt,omitempty"`
}
