package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// once they are valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case strings.HasPrefix(subject, SubjectAgentRun+"."):
		var req AgentRunRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if req.TaskType == "" {
			return fmt.Errorf("schema validation failed for %s: task_type is required", subject)
		}
	case strings.HasPrefix(subject, SubjectAudit+"."):
		var p AuditPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	}
	return nil
}
