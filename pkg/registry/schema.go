package registry

// ActivityRegistry lists the service-task types a process model may reference.
type ActivityRegistry struct {
	Version    string     `json:"version"`
	Activities []Activity `json:"activities"`
}

type Activity struct {
	TaskType    string `json:"taskType"`
	DisplayName string `json:"displayName"`
	Category    string `json:"category"`
	// Agent is the agent name for LLM-backed activities, empty otherwise.
	Agent      string   `json:"agent,omitempty"`
	ErrorCodes []string `json:"errorCodes"`
}
