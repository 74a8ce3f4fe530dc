package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRegistry reads a registry document from path.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Default is the built-in catalogue of funnel activities.
func Default() *ActivityRegistry {
	return &ActivityRegistry{
		Version: "1",
		Activities: []Activity{
			{TaskType: "interpret-brief", DisplayName: "Interpret brief", Category: "agent", Agent: "INTAKE",
				ErrorCodes: []string{"TRANSPORT_ERROR", "PARSE_ERROR"}},
			{TaskType: "generate-strategy", DisplayName: "Generate strategy", Category: "agent", Agent: "DIRECTOR",
				ErrorCodes: []string{"TRANSPORT_ERROR", "PARSE_ERROR", "CONTRACT_VIOLATION"}},
			{TaskType: "build-funnel-content", DisplayName: "Build funnel content", Category: "agent", Agent: "MASTERMIND",
				ErrorCodes: []string{"TRANSPORT_ERROR", "PARSE_ERROR", "CONTRACT_VIOLATION"}},
			{TaskType: "fetch-images", DisplayName: "Fetch images", Category: "render"},
			{TaskType: "render-assets", DisplayName: "Render assets", Category: "render",
				ErrorCodes: []string{"VALIDATION_FAILED"}},
			{TaskType: "email-send", DisplayName: "Send email", Category: "nurture",
				ErrorCodes: []string{"DELIVERY_FAILURE"}},
			{TaskType: "send-nurture-email", DisplayName: "Send nurture follow-up", Category: "nurture",
				ErrorCodes: []string{"DELIVERY_FAILURE", "VALIDATION_FAILED"}},
		},
	}
}

// TaskTypes returns the task types in catalogue order.
func (r *ActivityRegistry) TaskTypes() []string {
	types := make([]string, 0, len(r.Activities))
	for _, a := range r.Activities {
		types = append(types, a.TaskType)
	}
	return types
}

// Find returns the activity for taskType.
func (r *ActivityRegistry) Find(taskType string) (Activity, bool) {
	for _, a := range r.Activities {
		if a.TaskType == taskType {
			return a, true
		}
	}
	return Activity{}, false
}
